package modmanager

import "github.com/AntelopeJS/antelopejs-sub002/rterrors"

// ConstructModules drives each named entry through construct(config), in
// the order given, so construction order is deterministic across a batch.
func (m *Manager) ConstructModules(ids []string) error {
	for _, id := range ids {
		entry, ok := m.GetModuleEntry(id)
		if !ok {
			continue
		}
		if err := m.constructEntry(entry); err != nil {
			return err
		}
	}
	return nil
}

// StartModules invokes start in the same order as ConstructModules.
func (m *Manager) StartModules(ids []string) error {
	for _, id := range ids {
		entry, ok := m.GetModuleEntry(id)
		if !ok {
			continue
		}
		if err := m.startEntry(entry); err != nil {
			return err
		}
	}
	return nil
}

// ConstructAll constructs every loaded module in insertion order.
func (m *Manager) ConstructAll() error { return m.ConstructModules(m.orderedIDs()) }

// StartAll starts every loaded module in insertion order.
func (m *Manager) StartAll() error { return m.StartModules(m.orderedIDs()) }

// StopAll stops every active module in reverse insertion order.
func (m *Manager) StopAll() error {
	ids := m.orderedIDs()
	for i := len(ids) - 1; i >= 0; i-- {
		entry, ok := m.GetModuleEntry(ids[i])
		if !ok {
			continue
		}
		if err := m.stopEntry(entry); err != nil {
			return err
		}
	}
	return nil
}

// DestroyAll stops (if still active) then destroys every loaded module, in
// reverse addition order, leaving each back in StateLoaded so it can be
// constructed and started again without a reload.
func (m *Manager) DestroyAll() error {
	ids := m.orderedIDs()
	for i := len(ids) - 1; i >= 0; i-- {
		entry, ok := m.GetModuleEntry(ids[i])
		if !ok {
			continue
		}
		if err := m.destroyEntry(entry); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) orderedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

func (m *Manager) constructEntry(entry *Entry) error {
	if entry.State != StateLoaded {
		return nil
	}
	if entry.Instance == nil {
		if m.Factory == nil {
			return &rterrors.LifecycleCallbackError{ModuleID: entry.ID, Stage: "construct", Cause: rterrors.NewConfigInvalid(entry.ID, "no module factory configured", nil)}
		}
		inst, err := m.Factory(entry)
		if err != nil {
			return &rterrors.LifecycleCallbackError{ModuleID: entry.ID, Stage: "construct", Cause: err}
		}
		entry.Instance = inst
	}
	if err := entry.Instance.Construct(entry.Config.Config); err != nil {
		return &rterrors.LifecycleCallbackError{ModuleID: entry.ID, Stage: "construct", Cause: err}
	}
	entry.State = StateConstructed
	return nil
}

func (m *Manager) startEntry(entry *Entry) error {
	if entry.State != StateConstructed {
		return nil
	}
	if err := entry.Instance.Start(); err != nil {
		return &rterrors.LifecycleCallbackError{ModuleID: entry.ID, Stage: "start", Cause: err}
	}
	entry.State = StateActive
	return nil
}

func (m *Manager) stopEntry(entry *Entry) error {
	if entry.State != StateActive {
		return nil
	}
	if err := entry.Instance.Stop(); err != nil {
		return &rterrors.LifecycleCallbackError{ModuleID: entry.ID, Stage: "stop", Cause: err}
	}
	entry.State = StateConstructed
	return nil
}

func (m *Manager) destroyEntry(entry *Entry) error {
	if entry.State == StateActive {
		if err := m.stopEntry(entry); err != nil {
			return err
		}
	}
	if entry.State == StateLoaded || entry.Instance == nil {
		entry.State = StateLoaded
		entry.Instance = nil
		return nil
	}
	if err := entry.Instance.Destroy(); err != nil {
		return &rterrors.LifecycleCallbackError{ModuleID: entry.ID, Stage: "destroy", Cause: err}
	}
	entry.State = StateLoaded
	entry.Instance = nil
	return nil
}

// Reload drives id through the full reload sequence: forget its cached
// compiled artifacts, reparse its manifest from disk, swap it in, then
// construct and start it again.
func (m *Manager) Reload(id string) error {
	entry, ok := m.GetModuleEntry(id)
	if !ok {
		return rterrors.NewConfigInvalid(id, "unknown module id", nil)
	}
	m.UnrequireModuleFiles(id)

	newManifest, err := reloadManifest(m.FS, entry.Manifest)
	if err != nil {
		return err
	}
	if err := m.ReplaceLoadedModule(id, newManifest); err != nil {
		return err
	}
	if err := m.ConstructModules([]string{id}); err != nil {
		return err
	}
	return m.StartModules([]string{id})
}
