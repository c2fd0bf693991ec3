package pledge

import (
	"context"
	"maps"
	"slices"
)

// AdminSpec carries the fields common to every admin kind.
type AdminSpec struct {
	Name       string
	URL        string
	CommitTime uint64
	Plugin     Address
}

// ProjectSpec describes a new project.
type ProjectSpec struct {
	AdminSpec

	// Admin is the controlling address; the caller when empty.
	Admin Address

	// Parent is the enclosing project, 0 for a root project.
	Parent AdminID
}

// AdminUpdate replaces the mutable fields of an admin.
type AdminUpdate struct {
	Addr       Address
	Name       string
	URL        string
	CommitTime uint64
}

// AddGiver registers a giver controlled by caller.
func (l *Ledger) AddGiver(ctx context.Context, caller Address, spec AdminSpec) (AdminID, error) {
	var id AdminID
	err := l.update(ctx, "add_giver", func(tx *txn) (err error) {
		id, err = tx.addAdmin(Giver, caller, spec, nil)
		return err
	})
	return id, err
}

// AddDelegate registers a delegate controlled by caller.
func (l *Ledger) AddDelegate(ctx context.Context, caller Address, spec AdminSpec) (AdminID, error) {
	var id AdminID
	err := l.update(ctx, "add_delegate", func(tx *txn) (err error) {
		id, err = tx.addAdmin(Delegate, caller, spec, nil)
		return err
	})
	return id, err
}

// AddProject registers a project. The parent, when set, must be a project
// whose nesting level is below MaxSubprojectLevel.
func (l *Ledger) AddProject(ctx context.Context, caller Address, spec ProjectSpec) (AdminID, error) {
	var id AdminID
	err := l.update(ctx, "add_project", func(tx *txn) error {
		if spec.Parent != 0 {
			parent, err := tx.admin(spec.Parent)
			if err != nil {
				return err
			}
			if parent.Kind != Project {
				return newError(ErrCodeTypeMismatch, "parent %d is a %s, not a Project", parent.ID, parent.Kind)
			}
			level, err := tx.projectLevel(parent)
			if err != nil {
				return err
			}
			if level >= MaxSubprojectLevel {
				return newError(ErrCodeLimitExceeded, "depth exceeded: parent %d is at level %d", parent.ID, level).
					with("limit", MaxSubprojectLevel)
			}
		}
		addr := spec.Admin
		if addr == "" {
			addr = caller
		}
		var err error
		id, err = tx.addAdmin(Project, addr, spec.AdminSpec, &ProjectInfo{Parent: spec.Parent})
		return err
	})
	return id, err
}

// UpdateGiver replaces a giver's mutable fields. Only its current address may.
func (l *Ledger) UpdateGiver(ctx context.Context, caller Address, id AdminID, upd AdminUpdate) error {
	return l.update(ctx, "update_giver", func(tx *txn) error {
		return tx.updateAdmin(caller, id, Giver, upd)
	})
}

// UpdateDelegate replaces a delegate's mutable fields.
func (l *Ledger) UpdateDelegate(ctx context.Context, caller Address, id AdminID, upd AdminUpdate) error {
	return l.update(ctx, "update_delegate", func(tx *txn) error {
		return tx.updateAdmin(caller, id, Delegate, upd)
	})
}

// UpdateProject replaces a project's mutable fields. Parent and plugin
// cannot change.
func (l *Ledger) UpdateProject(ctx context.Context, caller Address, id AdminID, upd AdminUpdate) error {
	return l.update(ctx, "update_project", func(tx *txn) error {
		return tx.updateAdmin(caller, id, Project, upd)
	})
}

// CancelProject permanently cancels a project. Value owned by the project
// or its descendants flows back upstream on the next normalization.
// Canceling twice is a no-op.
func (l *Ledger) CancelProject(ctx context.Context, caller Address, id AdminID) error {
	return l.update(ctx, "cancel_project", func(tx *txn) error {
		a, err := tx.admin(id)
		if err != nil {
			return err
		}
		if a.Kind != Project {
			return newError(ErrCodeTypeMismatch, "admin %d is a %s, not a Project", id, a.Kind)
		}
		if err := tx.checkAdminOwner(caller, a); err != nil {
			return err
		}
		if a.Project.Canceled {
			return nil
		}
		a = a.clone()
		a.Project.Canceled = true
		tx.putAdmin(a)
		tx.emit(Event{Kind: EventProjectCanceled, Project: id})
		return nil
	})
}

func (tx *txn) addAdmin(kind AdminKind, addr Address, spec AdminSpec, project *ProjectInfo) (AdminID, error) {
	if addr == "" {
		return 0, newError(ErrCodeUnauthorized, "an admin needs a controlling address")
	}
	if err := tx.l.validPlugin(spec.Plugin); err != nil {
		return 0, err
	}
	return tx.appendAdmin(Admin{
		Kind:       kind,
		Addr:       addr,
		Name:       spec.Name,
		URL:        spec.URL,
		CommitTime: spec.CommitTime,
		Plugin:     spec.Plugin,
		Project:    project,
	}), nil
}

func (tx *txn) updateAdmin(caller Address, id AdminID, kind AdminKind, upd AdminUpdate) error {
	a, err := tx.admin(id)
	if err != nil {
		return err
	}
	if a.Kind != kind {
		return newError(ErrCodeTypeMismatch, "admin %d is a %s, not a %s", id, a.Kind, kind)
	}
	if caller == "" || caller != a.Addr {
		return newError(ErrCodeUnauthorized, "%q does not control admin %d", caller, id).with("admin", id)
	}
	if upd.Addr == "" {
		return newError(ErrCodeUnauthorized, "an admin needs a controlling address")
	}
	a = a.clone()
	a.Addr = upd.Addr
	a.Name = upd.Name
	a.URL = upd.URL
	a.CommitTime = upd.CommitTime
	tx.putAdmin(a)
	return nil
}

// checkAdminOwner passes when caller is the admin's address or its plugin.
func (tx *txn) checkAdminOwner(caller Address, a Admin) error {
	if caller != "" && (caller == a.Addr || caller == a.Plugin) {
		return nil
	}
	return newError(ErrCodeUnauthorized, "%q does not control admin %d", caller, a.ID).with("admin", a.ID)
}

// projectLevel is 1 for a root project and grows by one per ancestor.
func (tx *txn) projectLevel(a Admin) (int, error) {
	level := 1
	for a.Project.Parent != 0 {
		if level > MaxSubprojectLevel {
			return 0, newError(ErrCodeInvariantViolation, "project %d nests deeper than %d", a.ID, MaxSubprojectLevel)
		}
		parent, err := tx.admin(a.Project.Parent)
		if err != nil {
			return 0, err
		}
		if parent.Kind != Project {
			return 0, newError(ErrCodeInvariantViolation, "parent %d of project %d is a %s", parent.ID, a.ID, parent.Kind)
		}
		a = parent
		level++
	}
	return level, nil
}

// isProjectCanceled reports whether id or any ancestor is canceled.
// Givers are never canceled.
func (tx *txn) isProjectCanceled(id AdminID) (bool, error) {
	a, err := tx.admin(id)
	if err != nil {
		return false, err
	}
	if a.Kind == Giver {
		return false, nil
	}
	for hops := 0; ; hops++ {
		if a.Kind != Project {
			return false, newError(ErrCodeInvariantViolation, "admin %d is a %s where a Project was expected", a.ID, a.Kind)
		}
		if hops > MaxSubprojectLevel {
			return false, newError(ErrCodeInvariantViolation, "project %d nests deeper than %d", id, MaxSubprojectLevel)
		}
		if a.Project.Canceled {
			return true, nil
		}
		if a.Project.Parent == 0 {
			return false, nil
		}
		if a, err = tx.admin(a.Project.Parent); err != nil {
			return false, err
		}
	}
}

// InstallPlugin makes p callable at addr. Admins reference plugins by
// address; installing replaces any plugin already at addr.
func (l *Ledger) InstallPlugin(addr Address, p Plugin) error {
	if addr == "" || p == nil {
		return newError(ErrCodeInvalidState, "a plugin needs an address and an implementation")
	}
	if l.hooking() {
		return errReentrant("install_plugin")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.plugins[addr] = p
	return nil
}

// AllowPluginCode adds a code hash to the allow-list. Owner only.
func (l *Ledger) AllowPluginCode(caller Address, hash string) error {
	return l.manageWhitelist(caller, func() { l.whitelist[hash] = struct{}{} })
}

// RevokePluginCode removes a code hash from the allow-list. Owner only.
// Admins already registered with that plugin keep it.
func (l *Ledger) RevokePluginCode(caller Address, hash string) error {
	return l.manageWhitelist(caller, func() { delete(l.whitelist, hash) })
}

// UseWhitelist turns allow-list enforcement on or off. Owner only.
func (l *Ledger) UseWhitelist(caller Address, enabled bool) error {
	return l.manageWhitelist(caller, func() { l.useWhitelist = enabled })
}

// AllowedPluginCodes returns the allow-list in sorted order.
func (l *Ledger) AllowedPluginCodes() ([]string, error) {
	if l.hooking() {
		return nil, errReentrant("allowed_plugin_codes")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Sorted(maps.Keys(l.whitelist)), nil
}

func (l *Ledger) manageWhitelist(caller Address, fn func()) error {
	if l.hooking() {
		return errReentrant("manage_whitelist")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner == "" || caller != l.owner {
		return newError(ErrCodeUnauthorized, "%q is not the ledger owner", caller)
	}
	fn()
	return nil
}

// validPlugin checks a plugin reference at registration time.
func (l *Ledger) validPlugin(addr Address) error {
	if addr == "" {
		return nil
	}
	p, ok := l.plugins[addr]
	if !ok {
		return newError(ErrCodeNotFound, "no plugin installed at %q", addr).with("plugin", addr)
	}
	if !l.useWhitelist {
		return nil
	}
	hash := PluginCodeHash(p)
	if _, ok := l.whitelist[hash]; !ok {
		return newError(ErrCodePluginNotWhitelisted, "plugin at %q is not whitelisted", addr).
			with("plugin", addr).with("code_hash", hash)
	}
	return nil
}
