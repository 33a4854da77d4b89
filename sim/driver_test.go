package sim

import (
	"context"
	"time"

	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type testComponent struct {
	*ComponentBase

	in  *Input[int]
	out *Sender[int]

	onPoll  func() error
	onComb  func() error
	onClock func() error

	sent      bool
	combs     int
	passCombs int
	clocks    int
}

func newTestComponent(name string, mgr *Manager, spec Spec) *testComponent {
	c := &testComponent{}
	c.ComponentBase = NewComponentBase(name, mgr, spec, c)
	c.in = AddInput[int](c.ComponentBase, "In")
	c.out = AddOutput[int](c.ComponentBase, "Out")

	return c
}

func (c *testComponent) sendOnce(v int) {
	if !c.sent {
		c.out.Send(v)
		c.sent = true
	}
}

func (c *testComponent) InitImpl() error {
	return nil
}

func (c *testComponent) ResetImpl() error {
	c.combs = 0
	c.passCombs = 0
	c.clocks = 0

	return nil
}

func (c *testComponent) PollImpl() error {
	if c.onPoll != nil {
		return c.onPoll()
	}

	return nil
}

func (c *testComponent) OnComb() error {
	c.combs++
	c.passCombs++

	if c.onComb != nil {
		return c.onComb()
	}

	return nil
}

func (c *testComponent) OnClock() error {
	c.clocks++

	if c.onClock != nil {
		return c.onClock()
	}

	return nil
}

func describeDriver(name string, newDriver func(mgr *Manager) Driver) bool {
	return Describe(name, func() {
		var (
			mgr    *Manager
			driver Driver
		)

		BeforeEach(func() {
			mgr = NewManager()
			driver = newDriver(mgr)
		})

		It("should register components by name", func() {
			a := newTestComponent("A", mgr, Spec{})
			driver.RegisterComponent(a)

			Expect(driver.GetComponentByName("A")).To(BeIdenticalTo(a))
			Expect(driver.GetComponentByName("B")).To(BeNil())
			Expect(func() { driver.RegisterComponent(a) }).To(Panic())
		})

		It("should run a single pass without liveness registrations", func() {
			a := newTestComponent("A", mgr, Spec{})
			b := newTestComponent("B", mgr, Spec{})
			Connect(a.out, b.in.Receiver)
			Connect(b.out, a.in.Receiver)
			driver.RegisterComponent(a)
			driver.RegisterComponent(b)

			stats, err := driver.Run(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Passes).To(Equal(uint64(1)))
			Expect(stats.Observations).To(Equal(uint64(0)))
			Expect(stats.Steps).To(Equal(uint64(0)))
			Expect(a.combs + b.combs).To(Equal(0))
		})

		It("should deliver one value exactly once", func() {
			src := newTestComponent("Src", mgr, Spec{})
			dst := newTestComponent("Dst", mgr, Spec{})
			Connect(src.out, dst.in.Receiver)
			Connect(dst.out, src.in.Receiver)
			driver.RegisterComponent(src)
			driver.RegisterComponent(dst)
			Expect(driver.InitComponents()).To(Succeed())

			src.out.Send(42)

			res, err := driver.Pass()
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Committed).To(Equal(1))
			Expect(res.Observations).To(Equal(1))
			Expect(dst.combs).To(Equal(1))
			Expect(dst.in.Value()).To(Equal(42))
			Expect(mgr.InFlight()).To(Equal(0))

			res, err = driver.Pass()
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Observations).To(Equal(0))
			Expect(dst.combs).To(Equal(1))
		})

		It("should terminate after the value of the primary is acknowledged",
			func() {
				src := newTestComponent("Src", mgr, Spec{Primary: true})
				dst := newTestComponent("Dst", mgr, Spec{})
				Connect(src.out, dst.in.Receiver)
				Connect(dst.out, src.in.Receiver)
				driver.RegisterComponent(src)
				driver.RegisterComponent(dst)

				src.onPoll = func() error {
					src.sendOnce(7)
					return nil
				}

				var inFlight []int
				driver.AcceptHook(NewHookFunc(func(ctx HookCtx) {
					if ctx.Pos == HookPosAfterPass {
						inFlight = append(inFlight, mgr.InFlight())
					}
				}))

				stats, err := driver.Run(context.Background())

				Expect(err).NotTo(HaveOccurred())
				Expect(inFlight).To(Equal([]int{1, 0}))
				Expect(stats.Steps).To(Equal(uint64(1)))
				Expect(stats.Passes).To(Equal(uint64(2)))
				Expect(dst.combs).To(Equal(1))
				Expect(dst.in.Value()).To(Equal(7))
			})

		It("should evaluate a feedback ring at most once per pass", func() {
			const limit = 10

			a := newTestComponent("A", mgr, Spec{Primary: true})
			b := newTestComponent("B", mgr, Spec{})
			Connect(a.out, b.in.Receiver)
			Connect(b.out, a.in.Receiver)
			driver.RegisterComponent(a)
			driver.RegisterComponent(b)

			a.onPoll = func() error {
				a.sendOnce(1)
				return nil
			}
			a.onComb = func() error {
				if n := a.in.Value(); n < limit {
					a.out.Send(n + 1)
				}
				return nil
			}
			b.onComb = func() error {
				b.out.Send(b.in.Value())
				return nil
			}

			maxCombs := 0
			driver.AcceptHook(NewHookFunc(func(ctx HookCtx) {
				if ctx.Pos != HookPosAfterPass {
					return
				}

				for _, c := range []*testComponent{a, b} {
					if c.passCombs > maxCombs {
						maxCombs = c.passCombs
					}
					c.passCombs = 0
				}
			}))

			stats, err := driver.Run(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(maxCombs).To(Equal(1))
			Expect(a.in.Value()).To(Equal(limit))
			Expect(b.combs).To(Equal(limit))
			Expect(a.combs).To(Equal(limit))
			Expect(stats.Steps).To(Equal(uint64(1)))
			Expect(mgr.InFlight()).To(Equal(0))
		})

		It("should keep the previous value for a whole step", func() {
			a := newTestComponent("A", mgr, Spec{Primary: true})
			b := newTestComponent("B", mgr, Spec{})
			Connect(a.out, b.in.Receiver)
			Connect(b.out, a.in.Receiver)
			driver.RegisterComponent(a)
			driver.RegisterComponent(b)

			next := 1
			a.onPoll = func() error {
				if next <= 3 && mgr.InFlight() == 0 {
					a.out.Send(next)
					next++
				}

				mgr.SetPendingWork(a.ID(), next <= 3)

				return nil
			}

			var seen [][3]int
			b.onComb = func() error {
				seen = append(seen, [3]int{
					int(mgr.Cycle()), b.in.Prev(), b.in.Value(),
				})
				return nil
			}

			stats, err := driver.Run(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Steps).To(Equal(uint64(1)))
			Expect(seen).To(Equal([][3]int{{1, 0, 1}, {1, 0, 2}, {1, 0, 3}}))

			a.out.Send(4)
			_, err = driver.Step(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(seen[3:]).To(Equal([][3]int{{2, 3, 4}}))
		})

		It("should run OnClock before OnComb", func() {
			c := newTestComponent("Clocked", mgr, Spec{Clock: true})
			src := newTestComponent("Src", mgr, Spec{})
			Connect(src.out, c.in.Receiver)
			Connect(c.out, src.in.Receiver)
			driver.RegisterComponent(c)
			driver.RegisterComponent(src)
			Expect(driver.InitComponents()).To(Succeed())

			var order []string
			c.onClock = func() error {
				order = append(order, "clock")
				return nil
			}
			c.onComb = func() error {
				order = append(order, "comb")
				return nil
			}

			mgr.BroadcastTick()
			src.out.Send(3)
			res, err := driver.Pass()

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Observations).To(Equal(2))
			Expect(order).To(Equal([]string{"clock", "comb", "comb"}))
		})

		It("should tick clocked components once per step", func() {
			c := newTestComponent("Clocked", mgr, Spec{Clock: true, Primary: true})
			src := newTestComponent("Src", mgr, Spec{})
			Connect(src.out, c.in.Receiver)
			Connect(c.out, src.in.Receiver)
			driver.RegisterComponent(c)
			driver.RegisterComponent(src)

			c.onClock = func() error {
				mgr.SetPendingWork(c.ID(), c.clocks < 3)
				return nil
			}

			stats, err := driver.Run(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(c.clocks).To(Equal(3))
			Expect(stats.Cycle).To(Equal(uint64(3)))
			Expect(stats.Steps).To(Equal(uint64(3)))
		})

		It("should stop at the step limit", func() {
			a := newTestComponent("A", mgr, Spec{Primary: true})
			b := newTestComponent("B", mgr, Spec{})
			Connect(a.out, b.in.Receiver)
			Connect(b.out, a.in.Receiver)
			driver.RegisterComponent(a)
			driver.RegisterComponent(b)
			a.onPoll = func() error {
				mgr.SetPendingWork(a.ID(), true)
				return nil
			}
			driver.SetLimits(3, 0)

			stats, err := driver.Run(context.Background())

			Expect(errors.Is(err, ErrStepLimit)).To(BeTrue())
			Expect(stats.Steps).To(Equal(uint64(3)))
		})

		It("should stop at the pass limit", func() {
			a := newTestComponent("A", mgr, Spec{Primary: true})
			b := newTestComponent("B", mgr, Spec{})
			Connect(a.out, b.in.Receiver)
			Connect(b.out, a.in.Receiver)
			driver.RegisterComponent(a)
			driver.RegisterComponent(b)

			a.onPoll = func() error {
				a.sendOnce(0)
				return nil
			}
			a.onComb = func() error {
				a.out.Send(a.in.Value() + 1)
				return nil
			}
			b.onComb = func() error {
				b.out.Send(b.in.Value())
				return nil
			}
			driver.SetLimits(0, 10)

			_, err := driver.Run(context.Background())

			Expect(errors.Is(err, ErrPassLimit)).To(BeTrue())
		})

		It("should stop when the context is cancelled", func() {
			a := newTestComponent("A", mgr, Spec{Primary: true})
			b := newTestComponent("B", mgr, Spec{})
			Connect(a.out, b.in.Receiver)
			Connect(b.out, a.in.Receiver)
			driver.RegisterComponent(a)
			driver.RegisterComponent(b)
			a.onPoll = func() error {
				mgr.SetPendingWork(a.ID(), true)
				return nil
			}

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := driver.Run(ctx)

			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})

		It("should return the error of a failed component", func() {
			a := newTestComponent("A", mgr, Spec{Primary: true})
			b := newTestComponent("B", mgr, Spec{})
			Connect(a.out, b.in.Receiver)
			Connect(b.out, a.in.Receiver)
			driver.RegisterComponent(a)
			driver.RegisterComponent(b)

			a.onPoll = func() error {
				a.sendOnce(1)
				return nil
			}
			b.onComb = func() error {
				return errors.New("cannot handle 1")
			}

			_, err := driver.Run(context.Background())

			Expect(err).To(MatchError(ContainSubstring("cannot handle 1")))
			Expect(b.State()).To(Equal(StateFailed))
		})

		It("should reset components", func() {
			a := newTestComponent("A", mgr, Spec{})
			b := newTestComponent("B", mgr, Spec{})
			Connect(a.out, b.in.Receiver)
			Connect(b.out, a.in.Receiver)
			driver.RegisterComponent(a)
			driver.RegisterComponent(b)
			Expect(driver.InitComponents()).To(Succeed())

			a.out.Send(1)
			Expect(driver.ResetComponents()).To(Succeed())

			Expect(mgr.InFlight()).To(Equal(0))
			res, err := driver.Pass()
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Observations).To(Equal(0))
		})

		It("should hold a run while paused", func() {
			a := newTestComponent("A", mgr, Spec{Primary: true})
			b := newTestComponent("B", mgr, Spec{})
			Connect(a.out, b.in.Receiver)
			Connect(b.out, a.in.Receiver)
			driver.RegisterComponent(a)
			driver.RegisterComponent(b)
			a.onPoll = func() error {
				a.sendOnce(1)
				return nil
			}

			driver.Pause()

			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				_, err := driver.Run(context.Background())
				Expect(err).NotTo(HaveOccurred())
				close(done)
			}()

			Consistently(done, 50*time.Millisecond).ShouldNot(BeClosed())

			driver.Continue()

			Eventually(done, time.Second).Should(BeClosed())
		})

		It("should invoke step hooks", func() {
			a := newTestComponent("A", mgr, Spec{Primary: true})
			b := newTestComponent("B", mgr, Spec{})
			Connect(a.out, b.in.Receiver)
			Connect(b.out, a.in.Receiver)
			driver.RegisterComponent(a)
			driver.RegisterComponent(b)
			a.onPoll = func() error {
				a.sendOnce(1)
				return nil
			}

			var steps []StepResult
			driver.AcceptHook(NewHookFunc(func(ctx HookCtx) {
				if ctx.Pos == HookPosAfterStep {
					steps = append(steps, ctx.Item.(StepResult))
				}
			}))

			_, err := driver.Run(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(steps).To(HaveLen(1))
			Expect(steps[0].Terminated).To(BeTrue())
			Expect(steps[0].Observations).To(Equal(1))
		})
	})
}

var _ = describeDriver("SerialDriver", func(mgr *Manager) Driver {
	return NewSerialDriver(mgr)
})

var _ = describeDriver("ParallelDriver", func(mgr *Manager) Driver {
	return NewParallelDriver(mgr, 2)
})

var _ = Describe("ParallelDriver", func() {
	It("should default to GOMAXPROCS workers", func() {
		d := NewParallelDriver(NewManager(), 0)

		Expect(d.Workers()).To(BeNumerically(">", 0))
	})
})
