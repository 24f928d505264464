package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault_IsNoopByDefault(t *testing.T) {
	SetRecorder(nil)
	r := Default()
	assert.NotPanics(t, func() {
		r.IncToolTotal("search", "success")
		r.ObserveToolSeconds("search", "success", 0.01)
		r.IncBreakerTransition("closed", "open")
		r.IncBridgeMessage("outbound", "request")
	})
}

type fakeRecorder struct {
	toolCalls int
}

func (f *fakeRecorder) IncToolTotal(string, string)                { f.toolCalls++ }
func (f *fakeRecorder) ObserveToolSeconds(string, string, float64) {}
func (f *fakeRecorder) IncBreakerTransition(string, string)        {}
func (f *fakeRecorder) IncBridgeMessage(string, string)            {}

func TestSetRecorder_SwapsGlobal(t *testing.T) {
	f := &fakeRecorder{}
	SetRecorder(f)
	defer SetRecorder(nil)

	done := TimeTool("search")
	done("success")

	assert.Equal(t, 1, f.toolCalls)
}
