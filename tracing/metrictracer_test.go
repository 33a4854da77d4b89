package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sarchlab/rsim/sim"
)

var _ = Describe("MetricTracer", func() {
	var (
		mgr      *sim.Manager
		sender   *sim.Sender[int]
		receiver *sim.Receiver[int]
		tracer   *MetricTracer
	)

	BeforeEach(func() {
		mgr = sim.NewManager()
		sender = sim.NewSender[int](mgr, mgr.NewComponentID(), "A.Out")
		receiver = sim.NewReceiver[int](mgr, mgr.NewComponentID(), "B.In")
		sim.Connect(sender, receiver)
		tracer = NewMetricTracer(nil)
	})

	It("should count the events of a port by kind", func() {
		CollectTraceAll(mgr, tracer)

		sender.Send(1)
		sender.Send(2)
		mgr.AdvancePass()
		receiver.TryRecv()
		Expect(receiver.Ack()).To(Succeed())

		Expect(testutil.ToFloat64(tracer.Counter("A.Out", KindSend))).
			To(Equal(2.0))
		Expect(testutil.ToFloat64(tracer.Counter("B.In", KindSupersede))).
			To(Equal(1.0))
		Expect(testutil.ToFloat64(tracer.Counter("B.In", KindAck))).
			To(Equal(1.0))
	})

	It("should skip filtered tasks", func() {
		tracer = NewMetricTracer(func(t Task) bool {
			return t.Kind == KindAck
		})
		CollectTraceAll(mgr, tracer)

		sender.Send(1)
		mgr.AdvancePass()
		receiver.TryRecv()
		Expect(receiver.Ack()).To(Succeed())

		Expect(testutil.ToFloat64(tracer.Counter("A.Out", KindSend))).
			To(BeZero())
		Expect(testutil.ToFloat64(tracer.Counter("B.In", KindAck))).
			To(Equal(1.0))
	})

	It("should register once", func() {
		reg := prometheus.NewRegistry()

		Expect(tracer.Register(reg)).To(Succeed())
		Expect(tracer.Register(reg)).NotTo(Succeed())
	})
})
