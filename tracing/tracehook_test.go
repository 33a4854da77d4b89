package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"

	"github.com/sarchlab/rsim/sim"
)

var _ = Describe("Trace hook", func() {
	var (
		mockCtrl *gomock.Controller
		tracer   *MockTracer
		mgr      *sim.Manager
		sender   *sim.Sender[int]
		receiver *sim.Receiver[int]
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		tracer = NewMockTracer(mockCtrl)
		mgr = sim.NewManager()
		sender = sim.NewSender[int](mgr, mgr.NewComponentID(), "A.Out")
		receiver = sim.NewReceiver[int](mgr, mgr.NewComponentID(), "B.In")
		sim.Connect(sender, receiver)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should turn the life of an event into a task", func() {
		CollectTraceAll(mgr, tracer)

		var tasks []Task
		record := func(task Task) { tasks = append(tasks, task) }

		gomock.InOrder(
			tracer.EXPECT().StartTask(gomock.Any()).Do(record),
			tracer.EXPECT().StepTask(gomock.Any()).Do(record).Times(2),
			tracer.EXPECT().EndTask(gomock.Any()).Do(record),
		)

		id := sender.Send(9)
		mgr.AdvancePass()
		receiver.TryRecv()
		receiver.TryRecv()
		Expect(receiver.Ack()).To(Succeed())

		Expect(tasks).To(HaveLen(4))

		kinds := make([]string, len(tasks))
		for i, t := range tasks {
			kinds[i] = t.Kind
			Expect(t.ID).To(Equal(id.String()))
			Expect(t.Value).To(Equal("9"))
		}

		Expect(kinds).To(Equal([]string{
			KindSend, KindCommit, KindRecv, KindAck,
		}))
		Expect(tasks[0].Where).To(Equal("A.Out"))
		Expect(tasks[3].Where).To(Equal("B.In"))
	})

	It("should end superseded tasks", func() {
		CollectTrace(receiver, tracer)

		var ended []Task
		tracer.EXPECT().EndTask(gomock.Any()).
			Do(func(task Task) { ended = append(ended, task) })
		tracer.EXPECT().StepTask(gomock.Any())

		first := sender.Send(1)
		sender.Send(2)
		mgr.AdvancePass()

		Expect(ended).To(HaveLen(1))
		Expect(ended[0].Kind).To(Equal(KindSupersede))
		Expect(ended[0].ID).To(Equal(first.String()))
	})

	It("should count observations", func() {
		counter := NewObservationCounter(nil)
		CollectTraceAll(mgr, counter)

		sender.Send(1)
		mgr.AdvancePass()
		receiver.TryRecv()
		Expect(receiver.Ack()).To(Succeed())

		sender.Send(2)
		sender.Send(3)

		Expect(counter.Count("A.Out", KindSend)).To(Equal(uint64(3)))
		Expect(counter.Count("B.In", KindRecv)).To(Equal(uint64(1)))
		Expect(counter.Count("B.In", KindSupersede)).To(Equal(uint64(1)))
		Expect(counter.Total(KindAck)).To(Equal(uint64(1)))
		Expect(counter.Ports()).To(Equal([]string{"A.Out", "B.In"}))
	})

	It("should filter observations", func() {
		counter := NewObservationCounter(func(t Task) bool {
			return t.Kind == KindAck
		})
		CollectTraceAll(mgr, counter)

		sender.Send(1)
		mgr.AdvancePass()
		receiver.TryRecv()
		Expect(receiver.Ack()).To(Succeed())

		Expect(counter.Total(KindSend)).To(Equal(uint64(0)))
		Expect(counter.Total(KindAck)).To(Equal(uint64(1)))
	})
})

var _ = Describe("AverageLatencyTracer", func() {
	var (
		mockCtrl   *gomock.Controller
		timeTeller *MockTimeTeller
		tracer     *AverageLatencyTracer
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		timeTeller = NewMockTimeTeller(mockCtrl)
		tracer = NewAverageLatencyTracer(timeTeller, nil)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should average the passes from send to ack", func() {
		gomock.InOrder(
			timeTeller.EXPECT().Stats().Return(sim.Stats{Passes: 1}),
			timeTeller.EXPECT().Stats().Return(sim.Stats{Passes: 2}),
			timeTeller.EXPECT().Stats().Return(sim.Stats{Passes: 3}),
			timeTeller.EXPECT().Stats().Return(sim.Stats{Passes: 6}),
		)

		tracer.StartTask(Task{ID: "E1", Kind: KindSend})
		tracer.StartTask(Task{ID: "E2", Kind: KindSend})
		tracer.EndTask(Task{ID: "E1", Kind: KindAck})
		tracer.EndTask(Task{ID: "E2", Kind: KindAck})

		Expect(tracer.TotalCount()).To(Equal(uint64(2)))
		Expect(tracer.AverageLatency()).To(BeNumerically("~", 3.0))
	})

	It("should not count superseded events", func() {
		timeTeller.EXPECT().Stats().Return(sim.Stats{Passes: 1}).Times(2)

		tracer.StartTask(Task{ID: "E1", Kind: KindSend})
		tracer.EndTask(Task{ID: "E1", Kind: KindSupersede})

		Expect(tracer.TotalCount()).To(Equal(uint64(0)))
	})
})
