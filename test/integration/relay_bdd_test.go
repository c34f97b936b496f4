//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/recguard/internal/alert"
	"github.com/eliteGoblin/focusd/recguard/internal/daemon"
	"github.com/eliteGoblin/focusd/recguard/internal/domain"
	"github.com/eliteGoblin/focusd/recguard/internal/ipc"
	"github.com/eliteGoblin/focusd/recguard/internal/relay"
	"github.com/eliteGoblin/focusd/recguard/internal/signature"
	"github.com/eliteGoblin/focusd/recguard/internal/usecase"
	"github.com/eliteGoblin/focusd/recguard/test/fixtures"
)

var _ = Describe("Display relay and command channel", func() {
	var (
		logger     *zap.Logger
		dispatcher *alert.Dispatcher
		guard      *usecase.Guard
		hub        *relay.Hub
		server     *httptest.Server
		conn       *websocket.Conn
	)

	BeforeEach(func() {
		logger = zap.NewNop()
		backend := fixtures.NewFakeBackend("snapshot", fixtures.Listing("Zoom.exe"))
		detector := usecase.NewDetector([]domain.ProcessLister{backend}, signature.DefaultTable(), logger)
		dispatcher = alert.NewDispatcher(nil, nil, logger)
		scheduler := daemon.NewScheduler(daemon.SchedulerConfig{Interval: 30 * time.Millisecond}, detector, dispatcher, logger)
		guard = usecase.NewGuard(detector, scheduler, dispatcher, nil, "test", logger)

		hub = relay.NewHub(guard, logger)
		dispatcher.AddSink(hub)
		server = httptest.NewServer(hub)

		var err error
		conn, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
		Expect(err).NotTo(HaveOccurred())
		Eventually(hub.Clients).Should(Equal(1))
	})

	AfterEach(func() {
		guard.ToggleDetection(false)
		_ = conn.Close()
		hub.Close()
		server.Close()
	})

	readOp := func(op string) map[string]any {
		for {
			Expect(conn.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
			var msg map[string]any
			Expect(conn.ReadJSON(&msg)).To(Succeed())
			if msg["op"] == op {
				return msg
			}
		}
	}

	It("toggles detection remotely and pushes recording-detected events", func() {
		req := relay.Request{Op: relay.OpToggleDetection, ID: "t1", Data: json.RawMessage(`{"enable":true}`)}
		Expect(conn.WriteJSON(req)).To(Succeed())

		resp := readOp(relay.OpToggleDetection)
		Expect(resp["result"]).To(Equal(true))

		pushed := readOp(relay.OpRecordingDetected)
		result := pushed["result"].(map[string]any)
		Expect(result["detected"]).To(Equal(true))
		Expect(result["processes"]).To(HaveLen(1))
	})

	It("maps command file entries onto the guard", func() {
		dir, err := os.MkdirTemp("", "recguard-cmd-*")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		watcher := ipc.NewCommandWatcher(dir, func(c ipc.Command) {
			switch c {
			case ipc.CmdEnable:
				guard.ToggleDetection(true)
			case ipc.CmdDisable:
				guard.ToggleDetection(false)
			}
		}, logger).WithPollInterval(50 * time.Millisecond)
		go func() { _ = watcher.Run(ctx) }()
		time.Sleep(100 * time.Millisecond)

		Expect(ipc.WriteCommand(dir, ipc.CmdEnable)).To(Succeed())
		Eventually(guard.GetDetectionStatus, 3*time.Second, 20*time.Millisecond).Should(BeTrue())

		Expect(ipc.WriteCommand(dir, ipc.CmdDisable)).To(Succeed())
		Eventually(guard.GetDetectionStatus, 3*time.Second, 20*time.Millisecond).Should(BeFalse())
	})
})
