package core

import (
	"errors"
	"fmt"
	"sync"

	"armlink/protocol"
)

// ErrInvalidJoint is returned for a joint index outside 0..JointCount-1
var ErrInvalidJoint = errors.New("invalid joint index")

// JointDriver applies joint targets to hardware and reports the current
// state. Index is the joint id; the physical mapping is fixed by the build.
type JointDriver interface {
	SetJoint(index int, target protocol.JointMoveSpeed) error
	Joint(index int) protocol.JointMoveSpeed
}

// MemoryJoints is a JointDriver that only remembers the last target of each
// joint. Used on the host simulator and in tests.
type MemoryJoints struct {
	mu     sync.Mutex
	joints [protocol.JointCount]protocol.JointMoveSpeed
}

// NewMemoryJoints creates a MemoryJoints with every joint at zero
func NewMemoryJoints() *MemoryJoints {
	return &MemoryJoints{}
}

// SetJoint records the target for joint index
func (m *MemoryJoints) SetJoint(index int, target protocol.JointMoveSpeed) error {
	if index < 0 || index >= protocol.JointCount {
		return fmt.Errorf("%w: %d", ErrInvalidJoint, index)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joints[index] = target
	return nil
}

// Joint returns the last target of joint index, or zero for a bad index
func (m *MemoryJoints) Joint(index int) protocol.JointMoveSpeed {
	if index < 0 || index >= protocol.JointCount {
		return protocol.JointMoveSpeed{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joints[index]
}

// readJoints collects the state of every joint from d
func readJoints(d JointDriver) protocol.JointsPositionSpeed {
	var p protocol.JointsPositionSpeed
	for i := range p.Joints {
		p.Joints[i] = d.Joint(i)
	}
	return p
}
