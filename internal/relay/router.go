// Action router: parses inbound envelopes, validates their command payloads,
// dispatches to the matching handler, and produces reply envelopes.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/hivechat/relay/internal/store"
)

// search never returns more hits than this.
const searchResultLimit = 100

type Router struct {
	store    store.Gateway
	dir      *Directory
	hub      *Hub
	validate *validator.Validate
	log      *slog.Logger
}

func NewRouter(gw store.Gateway, dir *Directory, hub *Hub, log *slog.Logger) *Router {
	return &Router{
		store:    gw,
		dir:      dir,
		hub:      hub,
		validate: validator.New(),
		log:      log,
	}
}

// Handle processes one inbound frame for a session and returns the envelopes
// owed to that session. Broadcasts to other sessions are issued internally,
// always after the corresponding persistence write has been accepted.
//
// Unparsable frames are logged and dropped without a response; unknown or
// absent actions are logged no-ops. Nothing in here is fatal to the
// connection: persistence failures come back as error-status envelopes.
func (r *Router) Handle(ctx context.Context, c *Client, raw []byte) [][]byte {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		incr("frames.malformed", 1)
		r.log.Warn("dropping malformed frame", "session", c.id, "error", err)
		return nil
	}
	if env.Action == "" {
		r.log.Debug("frame without action ignored", "session", c.id)
		return nil
	}

	// Lazily materialize the sender as a user and bind it to the session.
	if env.Sender != "" && env.Sender != ServerSender {
		if err := r.bindSender(ctx, c, env.Sender); err != nil {
			r.log.Warn("binding sender failed", "session", c.id, "sender", env.Sender, "error", err)
		}
	}

	var replies []Outbound
	switch env.Action {
	case actionSendMessage:
		replies = r.handleSendMessage(ctx, c, env, raw)
	case actionRegisterUser:
		replies = r.handleRegisterUser(ctx, c, env)
	case actionGetWorkspaceList:
		replies = r.handleWorkspaceList(ctx)
	case actionGetChannelList:
		replies = r.handleChannelList(ctx, c, env)
	case actionGetChannelData:
		replies = r.handleChannelData(ctx, env)
	case actionCreateWorkspace:
		replies = r.handleCreateWorkspace(ctx, env)
	case actionCreateChannel:
		replies = r.handleCreateChannel(ctx, env)
	case actionDeleteWorkspace:
		replies = r.handleDeleteWorkspace(ctx, env)
	case actionDeleteChannel:
		replies = r.handleDeleteChannel(ctx, env)
	case actionUpdateWorkspace:
		replies = r.handleUpdateWorkspace(ctx, env)
	case actionUpdateChannel:
		replies = r.handleUpdateChannel(ctx, env)
	case actionSearch:
		replies = r.handleSearch(ctx, env)
	default:
		r.log.Debug("unknown action ignored", "session", c.id, "action", env.Action)
		return nil
	}

	payloads := make([][]byte, 0, len(replies))
	for _, reply := range replies {
		if payload := mustMarshal(r.log, reply); payload != nil {
			payloads = append(payloads, payload)
		}
	}
	return payloads
}

// checkCmd translates validator output into a client-presentable message.
func (r *Router) checkCmd(cmd any) error {
	err := r.validate.Struct(cmd)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
			return strings.ToLower(fe.Field())
		})
		return fmt.Errorf("missing required field(s): %s", strings.Join(fields, ", "))
	}
	return err
}

func (r *Router) errorReply(replyAction string, err error) []Outbound {
	r.log.Warn("action failed", "action", replyAction, "error", err)
	return []Outbound{errorOutbound(replyAction, err)}
}

func responseAction(action string) string {
	return action + "_response"
}

// normalizeChannel strips the conventional "#" prefix clients attach to
// channel names.
func normalizeChannel(name string) string {
	return strings.TrimPrefix(name, "#")
}

func (r *Router) bindSender(ctx context.Context, c *Client, sender string) error {
	user, err := r.getOrCreateUser(ctx, sender)
	if err != nil {
		return err
	}
	r.hub.BindUser(c, user.ID, user.Name)
	return nil
}

// getOrCreateUser is idempotent: the same name always resolves to the same
// user document.
func (r *Router) getOrCreateUser(ctx context.Context, name string) (userDoc, error) {
	raw, err := r.store.FindOne(ctx, store.Users, store.Filter{"name": name})
	if err == nil {
		var user userDoc
		err = json.Unmarshal(raw, &user)
		return user, err
	}
	if !errors.Is(err, store.ErrNotFound) {
		return userDoc{}, err
	}
	user := userDoc{Name: name, CreatedAt: time.Now().UTC()}
	user.ID, err = r.store.InsertOne(ctx, store.Users, user)
	if err != nil {
		return userDoc{}, err
	}
	r.log.Info("user created", "user", name)
	return user, nil
}

// handleSendMessage persists a chat message and relays the original envelope
// to every other live session. The sender gets nothing back on success.
// A named workspace or channel that does not exist is an error, never a silent
// redirect to some other channel.
func (r *Router) handleSendMessage(ctx context.Context, c *Client, env Envelope, raw []byte) []Outbound {
	reply := responseAction(actionSendMessage)
	cmd := sendMessageCmd{
		Workspace: env.Workspace,
		Channel:   normalizeChannel(env.Channel),
		Content:   env.Message,
	}
	if err := r.checkCmd(cmd); err != nil {
		return r.errorReply(reply, err)
	}
	if _, err := r.dir.findWorkspace(ctx, cmd.Workspace); err != nil {
		return r.errorReply(reply, err)
	}
	if _, err := r.dir.findChannel(ctx, cmd.Workspace, cmd.Channel); err != nil {
		return r.errorReply(reply, err)
	}

	msg := messageDoc{
		Workspace: cmd.Workspace,
		Channel:   cmd.Channel,
		Sender:    env.Sender,
		Content:   cmd.Content,
		Date:      env.Date,
		Time:      env.Time,
		StoredAt:  time.Now().UnixMicro(),
	}
	if _, err := r.store.InsertOne(ctx, store.Messages, msg); err != nil {
		return r.errorReply(reply, err)
	}
	incr("messages", 1)

	if failed := r.hub.BroadcastAll(raw, c); len(failed) > 0 {
		r.log.Warn("chat broadcast incomplete", "failed_sessions", failed)
	}
	return nil
}

func (r *Router) handleRegisterUser(ctx context.Context, c *Client, env Envelope) []Outbound {
	reply := responseAction(actionRegisterUser)
	cmd := registerUserCmd{Username: env.Username}
	if err := r.checkCmd(cmd); err != nil {
		return r.errorReply(reply, err)
	}
	user, err := r.getOrCreateUser(ctx, cmd.Username)
	if err != nil {
		return r.errorReply(reply, err)
	}
	r.hub.BindUser(c, user.ID, user.Name)
	return []Outbound{successOutbound(reply, user.ID)}
}

func (r *Router) handleWorkspaceList(ctx context.Context) []Outbound {
	snapshot, err := r.dir.Snapshot(ctx)
	if err != nil {
		return r.errorReply(actionWorkspaceList, err)
	}
	out := newOutbound(actionWorkspaceList)
	out.Message = snapshot
	return []Outbound{out}
}

func (r *Router) handleChannelList(ctx context.Context, c *Client, env Envelope) []Outbound {
	cmd := channelListCmd{Workspace: env.Workspace}
	if err := r.checkCmd(cmd); err != nil {
		return r.errorReply(actionChannelList, err)
	}
	names, err := r.dir.ChannelNames(ctx, cmd.Workspace)
	if err != nil {
		return r.errorReply(actionChannelList, err)
	}
	// The successful listing doubles as this session's subscription to the
	// workspace's channel-level notifications.
	r.hub.SetSubscription(c, cmd.Workspace)

	out := newOutbound(actionChannelList)
	out.Workspace = cmd.Workspace
	out.Message = orEmpty(names)
	return []Outbound{out}
}

func (r *Router) handleChannelData(ctx context.Context, env Envelope) []Outbound {
	cmd := channelDataCmd{Workspace: env.Workspace, Channel: normalizeChannel(env.Channel)}
	if err := r.checkCmd(cmd); err != nil {
		return r.errorReply(actionChannelData, err)
	}
	if _, err := r.dir.findWorkspace(ctx, cmd.Workspace); err != nil {
		return r.errorReply(actionChannelData, err)
	}
	if _, err := r.dir.findChannel(ctx, cmd.Workspace, cmd.Channel); err != nil {
		return r.errorReply(actionChannelData, err)
	}

	raws, err := r.store.FindMany(ctx, store.Messages,
		store.Filter{"workspace": cmd.Workspace, "channel": cmd.Channel},
		store.Sort{Key: "stored_at"}, 0)
	if err != nil {
		return r.errorReply(actionChannelData, err)
	}
	history := make([]historyEntry, len(raws))
	for i, rawMsg := range raws {
		var msg messageDoc
		if err := json.Unmarshal(rawMsg, &msg); err != nil {
			return r.errorReply(actionChannelData, err)
		}
		history[i] = historyEntry{Date: msg.Date, Time: msg.Time, Sender: msg.Sender, Message: msg.Content}
	}

	out := newOutbound(actionChannelData)
	out.Workspace = cmd.Workspace
	out.Channel = cmd.Channel
	out.Message = history
	return []Outbound{out}
}

func (r *Router) handleCreateWorkspace(ctx context.Context, env Envelope) []Outbound {
	reply := responseAction(actionCreateWorkspace)
	cmd := createWorkspaceCmd{Name: env.Workspace}
	if err := r.checkCmd(cmd); err != nil {
		return r.errorReply(reply, err)
	}
	if err := r.dir.CreateWorkspace(ctx, cmd.Name); err != nil {
		return r.errorReply(reply, err)
	}
	r.broadcastWorkspaceUpdate(ctx)
	return []Outbound{successOutbound(reply, fmt.Sprintf("workspace %q created", cmd.Name))}
}

func (r *Router) handleCreateChannel(ctx context.Context, env Envelope) []Outbound {
	reply := responseAction(actionCreateChannel)
	cmd := createChannelCmd{
		Workspace:   env.Workspace,
		Channel:     normalizeChannel(env.Channel),
		Description: env.Description,
	}
	if err := r.checkCmd(cmd); err != nil {
		return r.errorReply(reply, err)
	}
	if err := r.dir.CreateChannel(ctx, cmd.Workspace, cmd.Channel, cmd.Description); err != nil {
		return r.errorReply(reply, err)
	}
	r.broadcastChannelUpdate(ctx, cmd.Workspace)
	return []Outbound{successOutbound(reply, fmt.Sprintf("channel %q created", cmd.Channel))}
}

func (r *Router) handleDeleteWorkspace(ctx context.Context, env Envelope) []Outbound {
	reply := responseAction(actionDeleteWorkspace)
	cmd := deleteWorkspaceCmd{Name: env.Workspace}
	if err := r.checkCmd(cmd); err != nil {
		return r.errorReply(reply, err)
	}
	if err := r.dir.DeleteWorkspace(ctx, cmd.Name); err != nil {
		return r.errorReply(reply, err)
	}
	r.broadcastWorkspaceUpdate(ctx)
	return []Outbound{successOutbound(reply, fmt.Sprintf("workspace %q deleted", cmd.Name))}
}

func (r *Router) handleDeleteChannel(ctx context.Context, env Envelope) []Outbound {
	reply := responseAction(actionDeleteChannel)
	cmd := deleteChannelCmd{Workspace: env.Workspace, Channel: normalizeChannel(env.Channel)}
	if err := r.checkCmd(cmd); err != nil {
		return r.errorReply(reply, err)
	}
	if err := r.dir.DeleteChannel(ctx, cmd.Workspace, cmd.Channel); err != nil {
		return r.errorReply(reply, err)
	}
	r.broadcastChannelUpdate(ctx, cmd.Workspace)
	return []Outbound{successOutbound(reply, fmt.Sprintf("channel %q deleted", cmd.Channel))}
}

func (r *Router) handleUpdateWorkspace(ctx context.Context, env Envelope) []Outbound {
	reply := responseAction(actionUpdateWorkspace)
	cmd := updateWorkspaceCmd{OldName: env.Workspace, NewName: env.NewName}
	if err := r.checkCmd(cmd); err != nil {
		return r.errorReply(reply, err)
	}
	if err := r.dir.RenameWorkspace(ctx, cmd.OldName, cmd.NewName); err != nil {
		return r.errorReply(reply, err)
	}
	r.broadcastWorkspaceUpdate(ctx)
	return []Outbound{successOutbound(reply, fmt.Sprintf("workspace %q renamed to %q", cmd.OldName, cmd.NewName))}
}

func (r *Router) handleUpdateChannel(ctx context.Context, env Envelope) []Outbound {
	reply := responseAction(actionUpdateChannel)
	cmd := updateChannelCmd{
		Workspace:   env.Workspace,
		OldName:     normalizeChannel(env.Channel),
		NewName:     normalizeChannel(env.NewName),
		Description: env.Description,
	}
	if err := r.checkCmd(cmd); err != nil {
		return r.errorReply(reply, err)
	}
	if err := r.dir.UpdateChannel(ctx, cmd.Workspace, cmd.OldName, cmd.NewName, cmd.Description); err != nil {
		return r.errorReply(reply, err)
	}
	r.broadcastChannelUpdate(ctx, cmd.Workspace)
	return []Outbound{successOutbound(reply, fmt.Sprintf("channel %q updated", cmd.OldName))}
}

// handleSearch runs a case-insensitive substring match over stored message
// content with optional workspace/channel/sender filters and an inclusive
// date range, newest first.
func (r *Router) handleSearch(ctx context.Context, env Envelope) []Outbound {
	cmd := searchCmd{
		Query:     env.Query,
		Workspace: env.Workspace,
		Channel:   normalizeChannel(env.Channel),
		Sender:    env.Username,
		FromDate:  env.FromDate,
		ToDate:    env.ToDate,
	}
	if err := r.checkCmd(cmd); err != nil {
		return r.errorReply(actionSearchResponse, err)
	}

	filter := store.Filter{}
	if cmd.Workspace != "" {
		filter["workspace"] = cmd.Workspace
	}
	if cmd.Channel != "" {
		filter["channel"] = cmd.Channel
	}
	if cmd.Sender != "" {
		filter["sender"] = cmd.Sender
	}

	raws, err := r.store.FindMany(ctx, store.Messages, filter,
		store.Sort{Key: "stored_at", Desc: true}, 0)
	if err != nil {
		return r.errorReply(actionSearchResponse, err)
	}

	needle := strings.ToLower(cmd.Query)
	results := make([]searchResult, 0)
	for _, rawMsg := range raws {
		var msg messageDoc
		if err := json.Unmarshal(rawMsg, &msg); err != nil {
			return r.errorReply(actionSearchResponse, err)
		}
		if !strings.Contains(strings.ToLower(msg.Content), needle) {
			continue
		}
		if cmd.FromDate != "" && msg.Date < cmd.FromDate {
			continue
		}
		if cmd.ToDate != "" && msg.Date > cmd.ToDate {
			continue
		}
		results = append(results, searchResult{
			Workspace: msg.Workspace,
			Channel:   msg.Channel,
			Date:      msg.Date,
			Time:      msg.Time,
			Sender:    msg.Sender,
			Message:   msg.Content,
		})
		if len(results) == searchResultLimit {
			break
		}
	}

	out := newOutbound(actionSearchResponse)
	out.Message = results
	out.Count = lo.ToPtr(len(results))
	return []Outbound{out}
}

// broadcastWorkspaceUpdate rebuilds the directory snapshot and pushes it to
// every live session.
func (r *Router) broadcastWorkspaceUpdate(ctx context.Context) {
	snapshot, err := r.dir.Snapshot(ctx)
	if err != nil {
		r.log.Error("rebuilding directory snapshot failed", "error", err)
		return
	}
	out := newOutbound(actionWorkspaceUpdate)
	out.Message = snapshot
	if failed := r.hub.BroadcastAll(mustMarshal(r.log, out), nil); len(failed) > 0 {
		r.log.Warn("workspace update broadcast incomplete", "failed_sessions", failed)
	}
}

// broadcastChannelUpdate pushes the workspace's fresh channel list to the
// sessions subscribed to that workspace only.
func (r *Router) broadcastChannelUpdate(ctx context.Context, workspace string) {
	names, err := r.dir.ChannelNames(ctx, workspace)
	if err != nil {
		r.log.Error("rebuilding channel list failed", "workspace", workspace, "error", err)
		return
	}
	out := newOutbound(actionChannelUpdate)
	out.Workspace = workspace
	out.Message = orEmpty(names)
	if failed := r.hub.BroadcastScoped(mustMarshal(r.log, out), workspace); len(failed) > 0 {
		r.log.Warn("channel update broadcast incomplete", "workspace", workspace, "failed_sessions", failed)
	}
}

func orEmpty(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
