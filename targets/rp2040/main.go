//go:build rp2040

package main

import (
	"machine"
	"time"

	"armlink/core"
	"armlink/protocol"
)

// A partial frame older than this is dropped so the stream can resync
const partialFrameTimeout = 50 * time.Millisecond

var (
	firmware    *core.Firmware
	inputBuffer *protocol.FifoBuffer

	// When the oldest buffered byte of a partial frame arrived
	partialSince time.Time

	consecutiveWriteFailures uint32
)

func main() {
	// Clear any watchdog state left over from before the reset
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()

	opts := []core.Option{core.WithClock(UptimeMillis)}
	if joints, err := NewServoJoints(); err == nil {
		opts = append(opts, core.WithJoints(joints))
	}
	// Without servos the firmware still answers, remembering targets only

	firmware = core.NewFirmware(opts...)
	inputBuffer = protocol.NewFifoBuffer(4 * protocol.MessageLength)

	var frame [protocol.MessageLength]byte
	for {
		func() {
			// Recover from panics in the main loop to prevent a firmware crash
			defer func() {
				if r := recover(); r != nil {
					firmware.RecordTransmissionError()
					inputBuffer.Reset()
				}
			}()

			readUSB()

			for inputBuffer.ReadFrame(&frame) {
				// Leftover bytes start the next frame
				partialSince = time.Now()

				reply, err := firmware.HandleFrame(frame[:])
				if err != nil || reply == nil {
					continue
				}
				writeUSB(reply)
			}
			dropStalePartial()
		}()

		// Yield to other goroutines
		time.Sleep(10 * time.Microsecond)
	}
}

// readUSB moves every pending USB byte into the input buffer
func readUSB() {
	for USBAvailable() > 0 {
		data, err := USBRead()
		if err != nil {
			firmware.RecordTransmissionError()
			return
		}
		if inputBuffer.Free() == 0 {
			// Buffer full
			firmware.RecordTransmissionError()
			return
		}
		if inputBuffer.IsEmpty() {
			partialSince = time.Now()
		}
		inputBuffer.Write([]byte{data})
	}
}

func dropStalePartial() {
	if n := inputBuffer.Available(); n > 0 && time.Since(partialSince) > partialFrameTimeout {
		inputBuffer.Pop(n)
		firmware.RecordTransmissionError()
	}
}

// writeUSB writes a reply frame, handling partial writes
func writeUSB(frame []byte) {
	written := 0
	for written < len(frame) {
		n, err := USBWriteBytes(frame[written:])
		if err != nil || n == 0 {
			// Likely disconnected; drop the reply and any stale input
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				consecutiveWriteFailures = 0
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
}
