//go:build integration

package integration

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
	"github.com/eliteGoblin/focusd/recguard/internal/infra"
	"github.com/eliteGoblin/focusd/recguard/internal/usecase"
)

var _ = Describe("Security event log", func() {
	var (
		dataDir string
		store   *infra.EventLog
		guard   *usecase.Guard
	)

	BeforeEach(func() {
		var err error
		dataDir, err = os.MkdirTemp("", "recguard-events-*")
		Expect(err).NotTo(HaveOccurred())

		store, err = infra.OpenEventLog(dataDir, infra.NewFileKeyProvider(dataDir))
		Expect(err).NotTo(HaveOccurred())

		guard = usecase.NewGuard(nil, nil, nil, store, "2.1.0", zap.NewNop())
	})

	AfterEach(func() {
		_ = store.Close()
		_ = os.RemoveAll(dataDir)
	})

	It("appends events in order with timestamp and app version", func() {
		Expect(guard.LogSecurityEvent(map[string]any{"type": "first"})).To(Equal(domain.LogResult{Success: true}))
		Expect(guard.LogSecurityEvent(map[string]any{"type": "second", "count": 2})).To(Equal(domain.LogResult{Success: true}))

		events, err := store.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(2))
		Expect(events[0].Payload["type"]).To(Equal("first"))
		Expect(events[1].Payload["type"]).To(Equal("second"))
		Expect(events[1].Payload["count"]).To(BeNumerically("==", 2))
		Expect(events[0].AppVersion).To(Equal("2.1.0"))
		Expect(events[0].ID).NotTo(Equal(events[1].ID))
		Expect(events[0].Timestamp).NotTo(BeZero())
	})

	It("survives a restart with the same key", func() {
		guard.LogSecurityEvent(map[string]any{"type": "before-restart"})
		Expect(store.Close()).To(Succeed())

		reopened, err := infra.OpenEventLog(dataDir, infra.NewFileKeyProvider(dataDir))
		Expect(err).NotTo(HaveOccurred())
		defer reopened.Close()

		events, err := reopened.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Payload["type"]).To(Equal("before-restart"))
	})

	It("reports failure instead of raising when the store is closed", func() {
		Expect(store.Close()).To(Succeed())

		result := guard.LogSecurityEvent(map[string]any{"type": "late"})

		Expect(result.Success).To(BeFalse())
		Expect(result.Error).To(ContainSubstring(domain.ErrPersistenceFailed.Error()))
	})
})
