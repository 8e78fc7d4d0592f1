package vm

// VariableSlot is a tagged value stored in an instance's variable map —
// the same payload shape as a stack variable, but owned independently of
// the main stack (spec.md §4.5).
type VariableSlot struct {
	Tag     DataType
	Payload [8]byte
}

// instance is one instance's variable storage: a VarId → slot map. Created
// lazily the first time InstanceManager.Instance is asked for its id,
// whether for a read or a write; instances are never destroyed.
type instance struct {
	vars map[VarId]VariableSlot
}

func newInstance() *instance {
	return &instance{vars: make(map[VarId]VariableSlot)}
}

// InstanceManager owns the global instance and any number of per-instance
// variable tables, keyed by InstanceId. Grounded on spec.md §3/§4.5; the
// original source's `for_each_instance`/`instances.global()` is reflected
// here as Global()/Instance(id).
type InstanceManager struct {
	instances map[InstanceId]*instance
}

func NewInstanceManager() *InstanceManager {
	m := &InstanceManager{instances: make(map[InstanceId]*instance)}
	m.instances[GlobalInstanceId] = newInstance()
	return m
}

// Global returns the distinguished global instance's variable table.
func (m *InstanceManager) Global() *instance {
	return m.instances[GlobalInstanceId]
}

// Instance returns (creating if necessary) the variable table for a
// specific instance id.
func (m *InstanceManager) Instance(id InstanceId) *instance {
	inst, ok := m.instances[id]
	if !ok {
		inst = newInstance()
		m.instances[id] = inst
	}
	return inst
}

// Get reads a variable slot; ok is false if the VarId has never been
// written (an unknown VarId read is InvalidVariableAccess at the call
// site, not here — the manager itself does no checking beyond existence,
// per spec.md §4.5).
func (i *instance) Get(id VarId) (VariableSlot, bool) {
	slot, ok := i.vars[id]
	return slot, ok
}

// Set writes a variable slot, creating the entry if needed.
func (i *instance) Set(id VarId, slot VariableSlot) {
	i.vars[id] = slot
}
