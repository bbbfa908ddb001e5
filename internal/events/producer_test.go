package events

import (
	"bytes"
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("producer", Ordered, func() {
	Context("write", func() {
		It("writes successfully", func() {
			w := newTestWriter()
			ep := NewEventProducer(w)

			msg := []byte("msg1")
			err := ep.Write(context.TODO(), BatchMessageKind, bytes.NewReader(msg))
			Expect(err).To(BeNil())
			Eventually(w.Len).WithTimeout(time.Second).Should(Equal(1))
			Expect(w.Messages()[0].Context.GetType()).To(Equal(BatchMessageKind))

			msg = []byte("msg2")
			err = ep.Write(context.TODO(), SessionMessageKind, bytes.NewReader(msg))
			Expect(err).To(BeNil())

			Eventually(w.Len).WithTimeout(time.Second).Should(Equal(2))

			ep.Close()
		})
	})
})

type testwriter struct {
	mu       sync.Mutex
	messages []cloudevents.Event
}

func newTestWriter() *testwriter {
	return &testwriter{messages: []cloudevents.Event{}}
}

func (t *testwriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, e)
	return nil
}

func (t *testwriter) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

func (t *testwriter) Messages() []cloudevents.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]cloudevents.Event{}, t.messages...)
}

func (t *testwriter) Close(_ context.Context) error {
	return nil
}
