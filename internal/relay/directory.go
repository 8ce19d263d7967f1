// Directory service: workspace/channel listing snapshots and structural
// mutations (create/rename/delete) with default-channel seeding.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/hivechat/relay/internal/store"
)

// Workspaces created through the relay start with these channels.
var defaultChannels = []string{"general", "social"}

type Directory struct {
	store store.Gateway
	log   *slog.Logger
}

func NewDirectory(gw store.Gateway, log *slog.Logger) *Directory {
	return &Directory{store: gw, log: log}
}

// Snapshot builds the workspace -> ordered channel names listing used both for
// workspace_list replies and for rebuilding update-broadcast payloads after
// any structural mutation.
func (d *Directory) Snapshot(ctx context.Context) (map[string][]string, error) {
	raws, err := d.store.FindMany(ctx, store.Workspaces, nil, store.Sort{Key: "name"}, 0)
	if err != nil {
		return nil, err
	}
	snapshot := make(map[string][]string, len(raws))
	for _, raw := range raws {
		var ws workspaceDoc
		if err := json.Unmarshal(raw, &ws); err != nil {
			return nil, err
		}
		channels, err := d.channelNames(ctx, ws.Name)
		if err != nil {
			return nil, err
		}
		snapshot[ws.Name] = channels
	}
	return snapshot, nil
}

// ChannelNames lists the channels of one workspace ordered by name.
func (d *Directory) ChannelNames(ctx context.Context, workspace string) ([]string, error) {
	if _, err := d.findWorkspace(ctx, workspace); err != nil {
		return nil, err
	}
	return d.channelNames(ctx, workspace)
}

func (d *Directory) channelNames(ctx context.Context, workspace string) ([]string, error) {
	raws, err := d.store.FindMany(ctx, store.Channels,
		store.Filter{"workspace": workspace}, store.Sort{Key: "name"}, 0)
	if err != nil {
		return nil, err
	}
	channels := make([]channelDoc, len(raws))
	for i, raw := range raws {
		if err := json.Unmarshal(raw, &channels[i]); err != nil {
			return nil, err
		}
	}
	return lo.Map(channels, func(ch channelDoc, _ int) string { return ch.Name }), nil
}

func (d *Directory) findWorkspace(ctx context.Context, name string) (workspaceDoc, error) {
	raw, err := d.store.FindOne(ctx, store.Workspaces, store.Filter{"name": name})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return workspaceDoc{}, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, name)
		}
		return workspaceDoc{}, err
	}
	var ws workspaceDoc
	err = json.Unmarshal(raw, &ws)
	return ws, err
}

func (d *Directory) findChannel(ctx context.Context, workspace, name string) (channelDoc, error) {
	raw, err := d.store.FindOne(ctx, store.Channels,
		store.Filter{"workspace": workspace, "name": name})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return channelDoc{}, fmt.Errorf("%w: %s/%s", ErrChannelNotFound, workspace, name)
		}
		return channelDoc{}, err
	}
	var ch channelDoc
	err = json.Unmarshal(raw, &ch)
	return ch, err
}

// CreateWorkspace creates a workspace and seeds its default channels.
func (d *Directory) CreateWorkspace(ctx context.Context, name string) error {
	if _, err := d.findWorkspace(ctx, name); err == nil {
		return fmt.Errorf("%w: %s", ErrWorkspaceExists, name)
	} else if !errors.Is(err, ErrWorkspaceNotFound) {
		return err
	}

	now := time.Now().UTC()
	if _, err := d.store.InsertOne(ctx, store.Workspaces,
		workspaceDoc{Name: name, CreatedAt: now, UpdatedAt: now}); err != nil {
		return err
	}
	seeds := lo.Map(defaultChannels, func(ch string, _ int) any {
		return channelDoc{Name: ch, Workspace: name, CreatedAt: now, UpdatedAt: now}
	})
	if _, err := d.store.InsertMany(ctx, store.Channels, seeds); err != nil {
		return err
	}
	d.log.Info("workspace created", "workspace", name)
	return nil
}

// CreateChannel adds a channel to an existing workspace.
func (d *Directory) CreateChannel(ctx context.Context, workspace, name, description string) error {
	if _, err := d.findWorkspace(ctx, workspace); err != nil {
		return err
	}
	if _, err := d.findChannel(ctx, workspace, name); err == nil {
		return fmt.Errorf("%w: %s/%s", ErrChannelExists, workspace, name)
	} else if !errors.Is(err, ErrChannelNotFound) {
		return err
	}

	now := time.Now().UTC()
	_, err := d.store.InsertOne(ctx, store.Channels, channelDoc{
		Name:        name,
		Workspace:   workspace,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return err
	}
	d.log.Info("channel created", "workspace", workspace, "channel", name)
	return nil
}

// DeleteWorkspace cascade-deletes channels, then messages, then the workspace
// itself. The sequence is best-effort, not transactional: a crash mid-way can
// leave orphaned messages behind.
func (d *Directory) DeleteWorkspace(ctx context.Context, name string) error {
	if _, err := d.findWorkspace(ctx, name); err != nil {
		return err
	}
	channels, err := d.store.DeleteMany(ctx, store.Channels, store.Filter{"workspace": name})
	if err != nil {
		return err
	}
	messages, err := d.store.DeleteMany(ctx, store.Messages, store.Filter{"workspace": name})
	if err != nil {
		return err
	}
	if err := d.store.DeleteOne(ctx, store.Workspaces, store.Filter{"name": name}); err != nil {
		return err
	}
	d.log.Info("workspace deleted", "workspace", name, "channels", channels, "messages", messages)
	return nil
}

// DeleteChannel cascade-deletes a channel's messages, then the channel.
func (d *Directory) DeleteChannel(ctx context.Context, workspace, name string) error {
	if _, err := d.findWorkspace(ctx, workspace); err != nil {
		return err
	}
	if _, err := d.findChannel(ctx, workspace, name); err != nil {
		return err
	}
	messages, err := d.store.DeleteMany(ctx, store.Messages,
		store.Filter{"workspace": workspace, "channel": name})
	if err != nil {
		return err
	}
	if err := d.store.DeleteOne(ctx, store.Channels,
		store.Filter{"workspace": workspace, "name": name}); err != nil {
		return err
	}
	d.log.Info("channel deleted", "workspace", workspace, "channel", name, "messages", messages)
	return nil
}

// RenameWorkspace renames a workspace and rewrites the back-references held
// by its channels and messages so they keep resolving.
func (d *Directory) RenameWorkspace(ctx context.Context, oldName, newName string) error {
	if _, err := d.findWorkspace(ctx, oldName); err != nil {
		return err
	}
	now := time.Now().UTC()
	if newName == oldName {
		return d.store.UpdateOne(ctx, store.Workspaces,
			store.Filter{"name": oldName}, map[string]any{"updated_at": now})
	}
	if _, err := d.findWorkspace(ctx, newName); err == nil {
		return fmt.Errorf("%w: %s", ErrWorkspaceExists, newName)
	} else if !errors.Is(err, ErrWorkspaceNotFound) {
		return err
	}

	err := d.store.UpdateOne(ctx, store.Workspaces, store.Filter{"name": oldName},
		map[string]any{"name": newName, "updated_at": now})
	if err != nil {
		return err
	}
	retarget := map[string]any{"workspace": newName}
	if err := d.rewrite(ctx, store.Channels, store.Filter{"workspace": oldName}, retarget); err != nil {
		return err
	}
	if err := d.rewrite(ctx, store.Messages, store.Filter{"workspace": oldName}, retarget); err != nil {
		return err
	}
	d.log.Info("workspace renamed", "from", oldName, "to", newName)
	return nil
}

// UpdateChannel renames a channel (no-op names allowed) and optionally
// replaces its description, rewriting message back-references on rename.
func (d *Directory) UpdateChannel(ctx context.Context, workspace, oldName, newName, description string) error {
	if _, err := d.findWorkspace(ctx, workspace); err != nil {
		return err
	}
	if _, err := d.findChannel(ctx, workspace, oldName); err != nil {
		return err
	}
	renamed := newName != oldName
	if renamed {
		if _, err := d.findChannel(ctx, workspace, newName); err == nil {
			return fmt.Errorf("%w: %s/%s", ErrChannelExists, workspace, newName)
		} else if !errors.Is(err, ErrChannelNotFound) {
			return err
		}
	}

	fields := map[string]any{"name": newName, "updated_at": time.Now().UTC()}
	if description != "" {
		fields["description"] = description
	}
	err := d.store.UpdateOne(ctx, store.Channels,
		store.Filter{"workspace": workspace, "name": oldName}, fields)
	if err != nil {
		return err
	}
	if renamed {
		err = d.rewrite(ctx, store.Messages,
			store.Filter{"workspace": workspace, "channel": oldName},
			map[string]any{"channel": newName})
		if err != nil {
			return err
		}
	}
	d.log.Info("channel updated", "workspace", workspace, "from", oldName, "to", newName)
	return nil
}

// rewrite applies fields to every document matching filter, one at a time.
func (d *Directory) rewrite(ctx context.Context, collection string, filter store.Filter, fields map[string]any) error {
	raws, err := d.store.FindMany(ctx, collection, filter, store.Sort{}, 0)
	if err != nil {
		return err
	}
	for _, raw := range raws {
		var doc struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		if err := d.store.UpdateOne(ctx, collection, store.Filter{"id": doc.ID}, fields); err != nil {
			return err
		}
	}
	return nil
}
