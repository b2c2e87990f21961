package emailsvc

import (
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/testutil"
)

func resetMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "DUPONT, Jean", Address: "jean@uclouvain.be"}},
		Cc:           []mail.Address{{Address: "adri@uclouvain.be"}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{"Name": "DUPONT, Jean", "UID": "Nw", "Token": "abc-123"},
	}
}

func TestServiceMock_SendMessages(t *testing.T) {
	conf := core.NewTestConfig()
	logger := new(testutil.Logger)
	core.ParseEmailTemplates(conf, logger)
	svc := NewServiceMock(conf, logger)

	svc.SendMessages(
		resetMessage(),
		&core.EmailMessage{Subject: "no recipient", BodyStr: "hello"},
		&core.EmailMessage{To: []mail.Address{{Address: "a@b.c"}}, Subject: "empty"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, "http://localhost:3000/password-reset/Nw/abc-123")
	assert.Contains(t, sent[0].HTMLContent, "abc-123")
	assert.Empty(t, logger.Errors())

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestConsoleService_format(t *testing.T) {
	conf := core.NewTestConfig()
	logger := new(testutil.Logger)
	core.ParseEmailTemplates(conf, logger)
	svc := NewServiceMock(conf, logger)

	msg := resetMessage()
	require.NoError(t, msg.Render())
	require.NoError(t, msg.Attach(strings.NewReader("%PDF-1.4"), "agreement.pdf", "application/pdf"))

	body, err := svc.format(*msg)
	require.NoError(t, err)
	assert.Contains(t, body, "Subject: [OSIS-Partenariats] Password Reset\r\n")
	assert.Contains(t, body, `To: "DUPONT, Jean" <jean@uclouvain.be>`)
	assert.Contains(t, body, "CC: <adri@uclouvain.be>\r\n")
	assert.Contains(t, body, "Content-Type: multipart/mixed;")
	assert.Contains(t, body, "filename=agreement.pdf")
}

func TestSendgridService_prepare(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewSendgridService(conf, new(testutil.Logger)).(*sendgridService)

	msg := resetMessage()
	msg.TextContent = "text"
	msg.HTMLContent = "<p>html</p>"
	m := svc.prepare(*msg)

	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "[OSIS-Partenariats] Password Reset", p.Subject)
	assert.Equal(t, "jean@uclouvain.be", p.To[0].Address)
	assert.Equal(t, "adri@uclouvain.be", p.CC[0].Address)
	assert.Equal(t, "noreply@localhost", m.From.Address)
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/html", m.Content[1].Type)
}
