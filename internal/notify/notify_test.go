package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"spotbook-backend/internal/config"
)

func TestNew_FallsBackToLog(t *testing.T) {
	n := New(config.NotifyConfig{})
	_, ok := n.(LogNotifier)
	assert.True(t, ok)
	assert.NoError(t, n.NotifyOps(context.Background(), "subject", "body"))

	n = New(config.NotifyConfig{SendGridAPIKey: "SG.key", FromEmail: "noreply@spotbook.test", OpsEmail: "ops@spotbook.test"})
	_, ok = n.(*SendGridNotifier)
	assert.True(t, ok)
}

func TestHTMLBody(t *testing.T) {
	assert.Equal(t, "<pre>a &lt;b&gt; &amp; &#34;c&#34;</pre>", htmlBody(`a <b> & "c"`))
}
