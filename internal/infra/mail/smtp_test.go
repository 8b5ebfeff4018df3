package mail

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPSender_Send(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "mail.local", Port: "1025", From: "shop@example.com"}, nil)

	var gotAddr string
	var gotTo []string
	var gotMsg string
	var gotAuth smtp.Auth
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg, gotAuth = addr, to, string(msg), a
		return nil
	}

	err := s.Send(context.Background(), "user@example.com", "Email Verification OTP", "<p>123456</p>")
	require.NoError(t, err)

	assert.Equal(t, "mail.local:1025", gotAddr)
	assert.Equal(t, []string{"user@example.com"}, gotTo)
	assert.Nil(t, gotAuth)
	assert.Contains(t, gotMsg, "Subject: Email Verification OTP\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/html")
	assert.Contains(t, gotMsg, "<p>123456</p>")
}

func TestSMTPSender_Send_Error(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "mail.local", Port: "25", User: "u", Password: "p"}, nil)
	s.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }

	err := s.Send(context.Background(), "user@example.com", "hi", "body")
	require.Error(t, err)
}

func TestSMTPSender_RejectsHeaderInjection(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "h", Port: "25"}, nil)
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("must not send")
		return nil
	}
	err := s.Send(context.Background(), "a@example.com\r\nBcc: x@example.com", "hi", "body")
	require.Error(t, err)
}
