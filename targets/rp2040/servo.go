//go:build rp2040

package main

import (
	"machine"

	"tinygo.org/x/drivers/servo"

	"armlink/core"
	"armlink/protocol"
)

// Servo pulse limits in microseconds
const (
	minPulse = 500
	maxPulse = 2500
)

// jointPins maps joint index to servo signal pin
var jointPins = [protocol.JointCount]machine.Pin{
	machine.GPIO2,
	machine.GPIO3,
	machine.GPIO4,
}

// ServoJoints drives one hobby servo per joint. Position is the pulse width
// in microseconds; speed is remembered and reported but not actuated.
type ServoJoints struct {
	servos  [protocol.JointCount]servo.Servo
	targets [protocol.JointCount]protocol.JointMoveSpeed
}

// NewServoJoints configures PWM on every joint pin
func NewServoJoints() (*ServoJoints, error) {
	j := &ServoJoints{}
	for i, pin := range jointPins {
		s, err := servo.New(pwmPeripheral(pin), pin)
		if err != nil {
			return nil, err
		}
		j.servos[i] = s
	}
	return j, nil
}

// SetJoint moves the servo for joint index to target.Position
func (j *ServoJoints) SetJoint(index int, target protocol.JointMoveSpeed) error {
	if index < 0 || index >= protocol.JointCount {
		return core.ErrInvalidJoint
	}
	target.Position = clampPulse(target.Position)
	j.servos[index].SetMicroseconds(target.Position)
	j.targets[index] = target
	return nil
}

// Joint returns the last applied target of joint index
func (j *ServoJoints) Joint(index int) protocol.JointMoveSpeed {
	if index < 0 || index >= protocol.JointCount {
		return protocol.JointMoveSpeed{}
	}
	return j.targets[index]
}

func clampPulse(us int16) int16 {
	switch {
	case us < minPulse:
		return minPulse
	case us > maxPulse:
		return maxPulse
	}
	return us
}

// pwmPeripheral returns the PWM slice driving pin.
// GPIO pin N maps to slice (N >> 1) & 0x7.
func pwmPeripheral(pin machine.Pin) servo.PWM {
	switch (uint8(pin) >> 1) & 0x7 {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}
