package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-1")}, nil
}

func TestNewSESSender_RequiresClientAndSender(t *testing.T) {
	if NewSESSender(nil, SESConfig{FromEmail: "bot@guestpilot.io"}, nil) != nil {
		t.Error("expected nil sender without a client")
	}
	if NewSESSender(&fakeSES{}, SESConfig{FromEmail: " "}, nil) != nil {
		t.Error("expected nil sender without a from address")
	}
	sender := NewSESSender(&fakeSES{}, SESConfig{FromEmail: "bot@guestpilot.io"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, "GuestPilot", sender.fromName)
}

func TestSESSender_Send(t *testing.T) {
	api := &fakeSES{}
	sender := NewSESSender(api, SESConfig{FromEmail: "bot@guestpilot.io", FromName: "Dune Cottage"}, nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:      "host@example.com",
		ToName:  "Maya",
		Subject: "New guest conversation",
		Body:    "plain",
		HTML:    "<p>plain</p>",
	})
	require.NoError(t, err)
	require.Len(t, api.inputs, 1)

	in := api.inputs[0]
	assert.Equal(t, "Dune Cottage <bot@guestpilot.io>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"Maya <host@example.com>"}, in.Destination.ToAddresses)
	assert.Equal(t, "New guest conversation", aws.ToString(in.Content.Simple.Subject.Data))
	assert.Equal(t, "plain", aws.ToString(in.Content.Simple.Body.Text.Data))
	assert.Equal(t, "<p>plain</p>", aws.ToString(in.Content.Simple.Body.Html.Data))
}

func TestSESSender_SendTextOnly(t *testing.T) {
	api := &fakeSES{}
	sender := NewSESSender(api, SESConfig{FromEmail: "bot@guestpilot.io"}, nil)

	require.NoError(t, sender.Send(context.Background(), EmailMessage{To: "host@example.com", Subject: "Hi", Body: "plain"}))
	body := api.inputs[0].Content.Simple.Body
	assert.Nil(t, body.Html)
	assert.Equal(t, []string{"host@example.com"}, api.inputs[0].Destination.ToAddresses)
}

func TestSESSender_SendError(t *testing.T) {
	api := &fakeSES{err: errors.New("MessageRejected: Email address is not verified")}
	sender := NewSESSender(api, SESConfig{FromEmail: "bot@guestpilot.io"}, nil)

	err := sender.Send(context.Background(), EmailMessage{To: "host@example.com", Subject: "Hi", Body: "plain"})
	assert.ErrorContains(t, err, "notify: ses send failed")
	assert.ErrorIs(t, err, api.err)
}
