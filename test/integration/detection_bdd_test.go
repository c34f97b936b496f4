//go:build integration

package integration

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/recguard/internal/alert"
	"github.com/eliteGoblin/focusd/recguard/internal/daemon"
	"github.com/eliteGoblin/focusd/recguard/internal/domain"
	"github.com/eliteGoblin/focusd/recguard/internal/infra"
	"github.com/eliteGoblin/focusd/recguard/internal/signature"
	"github.com/eliteGoblin/focusd/recguard/internal/usecase"
	"github.com/eliteGoblin/focusd/recguard/test/fixtures"
)

var _ = Describe("Detection engine", func() {
	var (
		ctx    context.Context
		logger *zap.Logger
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger = zap.NewNop()
	})

	Context("with the default signature table", func() {
		It("falls back past a failing backend and never touches the third", func() {
			b1 := fixtures.NewFakeBackend("snapshot", fixtures.Failing("snapshot"))
			b2 := fixtures.NewFakeBackend("lookup", fixtures.Listing("explorer.exe", "obs64.exe"))
			b3 := fixtures.NewFakeBackend("tasklist", fixtures.Listing("bandicam.exe"))

			set := infra.NewBackendSetWith(logger, b1, b2, b3)
			detector := usecase.NewDetector(set.Backends(), signature.DefaultTable(), logger)

			result := detector.Detect(ctx)

			Expect(result.Detected).To(BeTrue())
			Expect(result.ProcessNames()).To(Equal([]string{"obs64.exe"}))
			Expect(result.Processes[0].PID).To(Equal(101))
			Expect(b3.Calls()).To(BeZero())
		})

		It("reports nothing when every backend is exhausted", func() {
			set := infra.NewBackendSetWith(logger,
				fixtures.NewUnavailableBackend("snapshot"),
				fixtures.NewFakeBackend("lookup", fixtures.Failing("lookup")),
				fixtures.NewFakeBackend("tasklist", fixtures.Failing("tasklist")),
			)
			detector := usecase.NewDetector(set.Backends(), signature.DefaultTable(), logger)

			result := detector.Detect(ctx)

			Expect(result.Detected).To(BeFalse())
			Expect(result.Processes).To(BeEmpty())
			Expect(result.Processes).NotTo(BeNil())
		})

		It("detects through the tasklist fallback on Windows output", func() {
			runner := &fixtures.StaticRunner{Out: []byte(fixtures.TasklistCSV("svchost.exe", "CamtasiaStudio.exe"))}
			tasklist := infra.NewTasklistListerWithRunner(runner, "windows", logger)
			set := infra.NewBackendSetWith(logger,
				fixtures.NewUnavailableBackend("snapshot"),
				fixtures.NewUnavailableBackend("lookup"),
				tasklist,
			)
			detector := usecase.NewDetector(set.Backends(), signature.DefaultTable(), logger)

			result := detector.Detect(ctx)

			Expect(result.Detected).To(BeTrue())
			Expect(result.Processes).To(HaveLen(1))
			Expect(result.Processes[0].Name).To(Equal("camtasiastudio.exe"))
			Expect(result.Processes[0].PID).To(Equal(1001))
		})

		It("treats the fallback off Windows as an empty answer", func() {
			runner := &fixtures.StaticRunner{Err: errors.New("tasklist: not found")}
			tasklist := infra.NewTasklistListerWithRunner(runner, "linux", logger)
			detector := usecase.NewDetector([]domain.ProcessLister{tasklist}, signature.DefaultTable(), logger)

			Expect(detector.Detect(ctx).Detected).To(BeFalse())

			set := infra.NewBackendSetWith(logger, tasklist)
			Expect(set.Status()[0].Reason).To(Equal(domain.ErrUnsupportedPlatform.Error()))
		})
	})

	Context("against the real host", func() {
		It("always answers without error", func() {
			set := infra.NewBackendSet(ctx, logger)
			detector := usecase.NewDetector(set.Backends(), signature.DefaultTable(), logger)

			result := detector.Detect(ctx)
			Expect(result.Detected).To(Equal(len(result.Processes) > 0))
			Expect(result.Timestamp).NotTo(BeZero())
		})
	})
})

var _ = Describe("Periodic detection", func() {
	var (
		logger     *zap.Logger
		backend    *fixtures.FakeBackend
		dispatcher *alert.Dispatcher
		scheduler  *daemon.Scheduler
		guard      *usecase.Guard

		mu     sync.Mutex
		events []domain.DetectionEvent
	)

	received := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(events)
	}

	BeforeEach(func() {
		logger = zap.NewNop()
		events = nil
		backend = fixtures.NewFakeBackend("snapshot",
			fixtures.Listing("chrome.exe"),
			fixtures.Listing("chrome.exe", "obs64.exe"),
		)
		detector := usecase.NewDetector([]domain.ProcessLister{backend}, signature.DefaultTable(), logger)
		dispatcher = alert.NewDispatcher(alert.NewLogPrompt(logger), nil, logger)
		scheduler = daemon.NewScheduler(daemon.SchedulerConfig{Interval: 20 * time.Millisecond}, detector, dispatcher, logger)
		guard = usecase.NewGuard(detector, scheduler, dispatcher, nil, "test", logger)

		guard.OnRecordingDetected(func(e domain.DetectionEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
		})
	})

	AfterEach(func() {
		guard.ToggleDetection(false)
		dispatcher.Close()
	})

	It("checks immediately, then re-alerts on every positive tick", func() {
		Expect(guard.ToggleDetection(true)).To(BeTrue())
		Expect(guard.GetDetectionStatus()).To(BeTrue())

		Eventually(received, 2*time.Second, 10*time.Millisecond).Should(BeNumerically(">=", 3))

		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			Expect(e.Detected).To(BeTrue())
			Expect(e.Processes[0].Name).To(Equal("obs64.exe"))
		}
	})

	It("stops delivering once detection is toggled off", func() {
		guard.ToggleDetection(true)
		Eventually(received, 2*time.Second, 10*time.Millisecond).Should(BeNumerically(">=", 1))

		Expect(guard.ToggleDetection(false)).To(BeFalse())
		Expect(guard.GetDetectionStatus()).To(BeFalse())

		time.Sleep(50 * time.Millisecond)
		settled := received()
		Consistently(received, 150*time.Millisecond, 10*time.Millisecond).Should(Equal(settled))
	})

	It("is idempotent under repeated toggles", func() {
		guard.ToggleDetection(true)
		guard.ToggleDetection(true)
		Expect(guard.GetDetectionStatus()).To(BeTrue())

		guard.ToggleDetection(false)
		guard.ToggleDetection(false)
		Expect(guard.GetDetectionStatus()).To(BeFalse())
	})
})
