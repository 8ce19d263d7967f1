// Wire envelopes exchanged with clients and the command payloads each action
// carries.
package relay

import (
	"encoding/json"
	"log/slog"
	"time"
)

// ServerSender is the reserved sender name on server-originated envelopes.
// Inbound frames claiming this sender never create or bind a user.
const ServerSender = "Server"

// Inbound actions.
const (
	actionSendMessage      = "send_message"
	actionRegisterUser     = "register_user"
	actionGetWorkspaceList = "get_workspace_list"
	actionGetChannelList   = "get_channel_list"
	actionGetChannelData   = "get_channel_data"
	actionCreateWorkspace  = "create_workspace"
	actionCreateChannel    = "create_channel"
	actionDeleteWorkspace  = "delete_workspace"
	actionDeleteChannel    = "delete_channel"
	actionUpdateWorkspace  = "update_workspace"
	actionUpdateChannel    = "update_channel"
	actionSearch           = "search"
)

// Outbound actions.
const (
	actionWorkspaceList   = "workspace_list"
	actionChannelList     = "channel_list"
	actionChannelData     = "channel_data"
	actionWorkspaceUpdate = "workspace_update"
	actionChannelUpdate   = "channel_update"
	actionSearchResponse  = "search_response"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Envelope is one inbound frame. Every action reads a subset of these fields;
// the per-action command structs below state which subset is required.
type Envelope struct {
	Action    string `json:"action"`
	Date      string `json:"date,omitempty"`
	Time      string `json:"time,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Workspace string `json:"workspace,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Message   string `json:"message,omitempty"`

	// register_user, and the sender filter on search.
	Username string `json:"username,omitempty"`

	// Rename targets for update_workspace / update_channel.
	NewName string `json:"new_name,omitempty"`

	// create_channel / update_channel.
	Description string `json:"description,omitempty"`

	// search.
	Query    string `json:"query,omitempty"`
	FromDate string `json:"from_date,omitempty"`
	ToDate   string `json:"to_date,omitempty"`
}

// Outbound is one server-originated frame.
type Outbound struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	Sender    string `json:"sender"`
	Action    string `json:"action"`
	Status    string `json:"status,omitempty"`
	Workspace string `json:"workspace,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Message   any    `json:"message"`
	Count     *int   `json:"count,omitempty"`
}

func newOutbound(action string) Outbound {
	now := time.Now()
	return Outbound{
		Date:   now.Format("2006-01-02"),
		Time:   now.Format("15:04:05"),
		Sender: ServerSender,
		Action: action,
	}
}

func successOutbound(action string, message any) Outbound {
	out := newOutbound(action)
	out.Status = statusSuccess
	out.Message = message
	return out
}

func errorOutbound(action string, err error) Outbound {
	out := newOutbound(action)
	out.Status = statusError
	out.Message = err.Error()
	return out
}

func mustMarshal(log *slog.Logger, out Outbound) []byte {
	payload, err := json.Marshal(out)
	if err != nil {
		// Outbound only carries marshalable values; this is a programming error.
		log.Error("failed to marshal outbound envelope", "action", out.Action, "error", err)
		return nil
	}
	return payload
}

// historyEntry is one stored message as replayed in channel_data.
type historyEntry struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// searchResult is one hit in a search_response.
type searchResult struct {
	Workspace string `json:"workspace"`
	Channel   string `json:"channel"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
}

// Per-action command payloads, validated at the dispatch boundary.

type sendMessageCmd struct {
	Workspace string `validate:"required"`
	Channel   string `validate:"required"`
	Content   string `validate:"required"`
}

type registerUserCmd struct {
	Username string `validate:"required"`
}

type channelListCmd struct {
	Workspace string `validate:"required"`
}

type channelDataCmd struct {
	Workspace string `validate:"required"`
	Channel   string `validate:"required"`
}

type createWorkspaceCmd struct {
	Name string `validate:"required"`
}

type createChannelCmd struct {
	Workspace   string `validate:"required"`
	Channel     string `validate:"required"`
	Description string
}

type deleteWorkspaceCmd struct {
	Name string `validate:"required"`
}

type deleteChannelCmd struct {
	Workspace string `validate:"required"`
	Channel   string `validate:"required"`
}

type updateWorkspaceCmd struct {
	OldName string `validate:"required"`
	NewName string `validate:"required"`
}

type updateChannelCmd struct {
	Workspace   string `validate:"required"`
	OldName     string `validate:"required"`
	NewName     string `validate:"required"`
	Description string
}

type searchCmd struct {
	Query     string `validate:"required"`
	Workspace string
	Channel   string
	Sender    string
	FromDate  string
	ToDate    string
}
