package sim

import (
	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"
)

type combOnlyBehavior struct{}

func (combOnlyBehavior) InitImpl() error  { return nil }
func (combOnlyBehavior) ResetImpl() error { return nil }
func (combOnlyBehavior) PollImpl() error  { return nil }
func (combOnlyBehavior) OnComb() error    { return nil }

var _ = Describe("ComponentBase", func() {
	var (
		mockCtrl *gomock.Controller
		mgr      *Manager
		behavior *MockClockedBehavior
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		mgr = NewManager()
		behavior = NewMockClockedBehavior(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should set and get name", func() {
		c := NewComponentBase("Comp", mgr, Spec{}, behavior)

		Expect(c.Name()).To(Equal("Comp"))
		Expect(c.ID()).NotTo(Equal(NoComponent))
		Expect(c.State()).To(Equal(StateUninitialized))
	})

	It("should panic if a clocked component has no OnClock", func() {
		Expect(func() {
			NewComponentBase("Comp", mgr, Spec{Clock: true}, combOnlyBehavior{})
		}).To(Panic())
	})

	Context("init", func() {
		It("should register a primary clocked component", func() {
			c := NewComponentBase("Comp", mgr,
				Spec{Clock: true, Primary: true}, behavior)
			behavior.EXPECT().InitImpl().Return(nil)

			Expect(c.Init()).To(Succeed())

			Expect(c.State()).To(Equal(StateInitialized))
			Expect(mgr.NumDoNotEnd()).To(Equal(1))
			Expect(mgr.NumClocks()).To(Equal(1))
		})

		It("should not register a plain component", func() {
			c := NewComponentBase("Comp", mgr, Spec{}, behavior)
			behavior.EXPECT().InitImpl().Return(nil)

			Expect(c.Init()).To(Succeed())

			Expect(mgr.NumDoNotEnd()).To(Equal(0))
			Expect(mgr.NumClocks()).To(Equal(0))
		})

		It("should run InitImpl before registering", func() {
			c := NewComponentBase("Comp", mgr, Spec{Primary: true}, behavior)
			behavior.EXPECT().InitImpl().DoAndReturn(func() error {
				Expect(mgr.NumDoNotEnd()).To(Equal(0))
				return nil
			})

			Expect(c.Init()).To(Succeed())
		})

		It("should refuse to init twice", func() {
			c := NewComponentBase("Comp", mgr, Spec{}, behavior)
			behavior.EXPECT().InitImpl().Return(nil)
			Expect(c.Init()).To(Succeed())

			err := c.Init()

			Expect(errors.Is(err, ErrAlreadyInitialized)).To(BeTrue())
		})

		It("should fail without registering if InitImpl fails", func() {
			c := NewComponentBase("Comp", mgr,
				Spec{Clock: true, Primary: true}, behavior)
			behavior.EXPECT().InitImpl().Return(errors.New("boom"))

			err := c.Init()

			Expect(err).To(MatchError(ContainSubstring("boom")))
			Expect(c.State()).To(Equal(StateFailed))
			Expect(mgr.NumDoNotEnd()).To(Equal(0))
			Expect(mgr.NumClocks()).To(Equal(0))
		})
	})

	Context("poll", func() {
		var (
			c      *ComponentBase
			in     *Input[int]
			out    *Sender[int]
			source *Sender[int]
		)

		BeforeEach(func() {
			c = NewComponentBase("Comp", mgr, Spec{Clock: true}, behavior)
			in = AddInput[int](c, "In")
			out = AddOutput[int](c, "Out")
			source = NewSender[int](mgr, mgr.NewComponentID(), "Source.Out")
			Connect(source, in.Receiver)
			Connect(out, NewReceiver[int](mgr, mgr.NewComponentID(), "Sink.In"))

			behavior.EXPECT().InitImpl().Return(nil)
			Expect(c.Init()).To(Succeed())
		})

		It("should name ports after the component", func() {
			Expect(in.Name()).To(Equal("Comp.In"))
			Expect(out.Name()).To(Equal("Comp.Out"))
			Expect(c.Ports()).To(HaveLen(2))
		})

		It("should refuse to poll before init", func() {
			other := NewComponentBase("Other", mgr, Spec{}, behavior)

			_, err := other.PollRecv()

			Expect(errors.Is(err, ErrNotInitialized)).To(BeTrue())
		})

		It("should only run PollImpl if nothing arrived", func() {
			behavior.EXPECT().PollImpl().Return(nil)

			n, err := c.PollRecv()

			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(0))
			Expect(c.State()).To(Equal(StateIdle))
		})

		It("should run OnClock before OnComb on a tick", func() {
			mgr.BroadcastTick()
			mgr.AdvancePass()

			gomock.InOrder(
				behavior.EXPECT().PollImpl().Return(nil),
				behavior.EXPECT().OnClock().Return(nil),
				behavior.EXPECT().OnComb().Return(nil),
			)

			n, err := c.PollRecv()

			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
			Expect(mgr.InFlight()).To(Equal(0))
		})

		It("should run OnComb once per new input value", func() {
			source.Send(5)
			mgr.AdvancePass()

			behavior.EXPECT().PollImpl().Return(nil)
			behavior.EXPECT().OnComb().DoAndReturn(func() error {
				Expect(c.State()).To(Equal(StateEvaluating))
				Expect(in.Value()).To(Equal(5))
				Expect(in.Prev()).To(Equal(0))
				return nil
			})

			n, err := c.PollRecv()

			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
			Expect(mgr.InFlight()).To(Equal(0))
			Expect(in.Prev()).To(Equal(0))

			behavior.EXPECT().PollImpl().Return(nil)

			n, err = c.PollRecv()

			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(0))
			Expect(in.Prev()).To(Equal(0))

			c.SnapshotInputs()

			Expect(in.Prev()).To(Equal(5))
			Expect(in.Value()).To(Equal(5))
		})

		It("should see the tick and the input in the same poll", func() {
			mgr.BroadcastTick()
			source.Send(5)
			mgr.AdvancePass()

			gomock.InOrder(
				behavior.EXPECT().PollImpl().Return(nil),
				behavior.EXPECT().OnClock().Return(nil),
				behavior.EXPECT().OnComb().Return(nil),
				behavior.EXPECT().OnComb().Return(nil),
			)

			n, err := c.PollRecv()

			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
		})

		It("should invoke hooks before clock and comb", func() {
			hook := NewMockHook(mockCtrl)
			c.AcceptHook(hook)
			mgr.BroadcastTick()
			mgr.AdvancePass()

			var positions []*HookPos
			hook.EXPECT().Func(gomock.Any()).
				Do(func(ctx HookCtx) { positions = append(positions, ctx.Pos) }).
				Times(2)
			behavior.EXPECT().PollImpl().Return(nil)
			behavior.EXPECT().OnClock().Return(nil)
			behavior.EXPECT().OnComb().Return(nil)

			_, err := c.PollRecv()

			Expect(err).NotTo(HaveOccurred())
			Expect(positions).To(Equal([]*HookPos{
				HookPosBeforeClock,
				HookPosBeforeComb,
			}))
		})

		It("should fail if OnComb fails", func() {
			source.Send(5)
			mgr.AdvancePass()

			behavior.EXPECT().PollImpl().Return(nil)
			behavior.EXPECT().OnComb().Return(errors.New("bad value"))

			_, err := c.PollRecv()

			Expect(err).To(MatchError(ContainSubstring("bad value")))
			Expect(err).To(MatchError(ContainSubstring("Comp: comb")))
			Expect(c.State()).To(Equal(StateFailed))

			_, err = c.PollRecv()

			Expect(errors.Is(err, ErrComponentFailed)).To(BeTrue())
		})

		It("should fail if PollImpl fails", func() {
			behavior.EXPECT().PollImpl().Return(errors.New("boom"))

			_, err := c.PollRecv()

			Expect(err).To(HaveOccurred())
			Expect(c.State()).To(Equal(StateFailed))
		})

		It("should reset the ports after ResetImpl", func() {
			in.SetDefault(-1)
			source.Send(5)
			mgr.AdvancePass()
			behavior.EXPECT().PollImpl().Return(nil)
			behavior.EXPECT().OnComb().Return(nil)
			_, err := c.PollRecv()
			Expect(err).NotTo(HaveOccurred())

			behavior.EXPECT().ResetImpl().DoAndReturn(func() error {
				Expect(in.Value()).To(Equal(5))
				return nil
			})

			Expect(c.Reset()).To(Succeed())

			Expect(in.Value()).To(Equal(-1))
			Expect(in.Prev()).To(Equal(-1))
			Expect(c.State()).To(Equal(StateInitialized))
		})

		It("should drop pending ticks and values on reset", func() {
			mgr.BroadcastTick()
			source.Send(5)
			behavior.EXPECT().ResetImpl().Return(nil)

			Expect(c.Reset()).To(Succeed())

			Expect(mgr.InFlight()).To(Equal(0))
			Expect(mgr.AdvancePass()).To(Equal(0))
		})

		It("should recover from failure by reset", func() {
			behavior.EXPECT().PollImpl().Return(errors.New("boom"))
			_, err := c.PollRecv()
			Expect(err).To(HaveOccurred())

			behavior.EXPECT().ResetImpl().Return(nil)
			Expect(c.Reset()).To(Succeed())

			behavior.EXPECT().PollImpl().Return(nil)
			_, err = c.PollRecv()
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
