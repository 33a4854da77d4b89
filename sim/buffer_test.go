package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"
)

var _ = Describe("Buffer", func() {
	var (
		mockCtrl *gomock.Controller
		buf      *Buffer[int]
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		buf = NewBuffer[int]("Buf", 2)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should be first in first out", func() {
		buf.Push(1)
		buf.Push(2)

		Expect(buf.CanPush()).To(BeFalse())
		Expect(buf.Size()).To(Equal(2))

		v, ok := buf.Peek()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(1))

		v, ok = buf.Pop()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(1))

		v, _ = buf.Pop()
		Expect(v).To(Equal(2))

		_, ok = buf.Pop()
		Expect(ok).To(BeFalse())
	})

	It("should panic on overflow", func() {
		buf.Push(1)
		buf.Push(2)

		Expect(func() { buf.Push(3) }).To(Panic())
	})

	It("should refuse a zero capacity", func() {
		Expect(func() { NewBuffer[int]("Buf", 0) }).To(Panic())
	})

	It("should clear", func() {
		buf.Push(1)
		buf.Clear()

		Expect(buf.Size()).To(Equal(0))
		_, ok := buf.Peek()
		Expect(ok).To(BeFalse())
	})

	It("should invoke hooks on push and pop", func() {
		hook := NewMockHook(mockCtrl)
		buf.AcceptHook(hook)

		var positions []*HookPos
		hook.EXPECT().Func(gomock.Any()).
			Do(func(ctx HookCtx) { positions = append(positions, ctx.Pos) }).
			Times(2)

		buf.Push(1)
		buf.Pop()

		Expect(positions).To(Equal([]*HookPos{HookPosBufPush, HookPosBufPop}))
	})
})
