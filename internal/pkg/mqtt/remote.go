package mqtt

import (
	"context"
	"errors"
	"time"

	"sim-gateway-go/internal/pkg/command"
	"sim-gateway-go/internal/pkg/logger"
)

// ResponsePublisher sends command responses back to the caller.
type ResponsePublisher interface {
	PublishResponse(resp *MQTTResponse) error
}

// RemoteExecutor runs inbound command messages against one command group
// and answers each with a response carrying the same request id.
type RemoteExecutor struct {
	commands  *command.Registry
	group     int
	publisher ResponsePublisher
	timeout   time.Duration
	lc        logger.LoggingClient
}

// NewRemoteExecutor creates an executor for group.
func NewRemoteExecutor(commands *command.Registry, group int, publisher ResponsePublisher, lc logger.LoggingClient) *RemoteExecutor {
	return &RemoteExecutor{
		commands:  commands,
		group:     group,
		publisher: publisher,
		timeout:   10 * time.Second,
		lc:        lc,
	}
}

// Handle is a MessageHandler for TypeCommand.
func (r *RemoteExecutor) Handle(msg *MQTTMessage) error {
	return r.publisher.PublishResponse(r.Execute(msg))
}

// Execute runs the command carried by msg and builds the response.
// Privileged commands and non-continue outcomes are refused; remote callers
// cannot stop the service.
func (r *RemoteExecutor) Execute(msg *MQTTMessage) *MQTTResponse {
	payload, err := msg.GetCommandPayload()
	if err != nil {
		return NewResponse(msg.RequestID, TypeCommand, CodeBadRequest, err.Error(), nil)
	}

	cmd, err := r.commands.Lookup(r.group, payload.Command)
	if err != nil {
		code := CodeNotFound
		if !errors.Is(err, command.ErrUnknownCommand) {
			code = CodeCommandError
		}
		return NewResponse(msg.RequestID, TypeCommand, code, err.Error(), &CommandResponsePayload{Command: payload.Command})
	}
	if cmd.Properties().Has(command.Privileged) {
		return NewResponse(msg.RequestID, TypeCommand, CodeForbidden, "privileged command", &CommandResponsePayload{Command: payload.Command})
	}

	available, _ := r.commands.Commands(r.group)
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	res, err := cmd.Execute(ctx, command.Input{
		Name:      payload.Command,
		Payload:   payload.Payload,
		SessionID: "mqtt:" + msg.RequestID,
		Available: available,
	})
	if err != nil {
		r.lc.Error("Remote command failed", "command", payload.Command, "requestId", msg.RequestID, "err", err)
		return NewResponse(msg.RequestID, TypeCommand, CodeCommandError, err.Error(), &CommandResponsePayload{Command: payload.Command})
	}
	if res.Outcome != command.Continue {
		return NewResponse(msg.RequestID, TypeCommand, CodeForbidden, "outcome "+res.Outcome.String()+" not allowed remotely", &CommandResponsePayload{Command: payload.Command})
	}

	return NewResponse(msg.RequestID, TypeCommand, CodeOK, "OK", &CommandResponsePayload{Command: payload.Command, Output: res.Output})
}
