package wake

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// Config carries the parameters a Driver needs for one wake attempt.
type Config struct {
	MAC           string
	BroadcastAddr string
	PacketRetries int           // additional sends after the first, at RetryInterval (spec: 2 more at 2s)
	RetryInterval time.Duration // 2s
	ProbeInterval time.Duration // 5s
	ProbeTimeout  time.Duration // <=2s
	PollWindow    time.Duration // 120s
}

// DefaultConfig returns the intervals named in §4.2.
func DefaultConfig(mac, broadcastAddr string) Config {
	return Config{
		MAC:           mac,
		BroadcastAddr: broadcastAddr,
		PacketRetries: 2,
		RetryInterval: 2 * time.Second,
		ProbeInterval: 5 * time.Second,
		ProbeTimeout:  2 * time.Second,
		PollWindow:    120 * time.Second,
	}
}

// BroadcastAddr derives the IPv4 directed broadcast address for ip under a
// /24 assumption, the simplest subnet an operator is likely to hand this
// pipeline given the spec leaves netmask configuration unspecified.
func BroadcastAddr(ip string) (string, error) {
	parsed := net.ParseIP(ip).To4()
	if parsed == nil {
		return "", fmt.Errorf("wake: %q is not an IPv4 address", ip)
	}
	return fmt.Sprintf("%d.%d.%d.255", parsed[0], parsed[1], parsed[2]), nil
}

// ErrWorkerUnavailable is returned when the poll window expires without the
// worker becoming ready, or when waking is disabled and the initial probe
// fails (§4.2 step 4 / "wake disabled").
type ErrWorkerUnavailable struct {
	Reason string
}

func (e *ErrWorkerUnavailable) Error() string {
	return fmt.Sprintf("worker unavailable: %s", e.Reason)
}

// Driver runs the Wake Protocol state machine against one worker.
type Driver struct {
	machine *Machine
	prober  Prober
	sender  *PacketSender
	log     zerolog.Logger
	sleep   func(time.Duration) // overridable in tests
}

// NewDriver builds a Driver. sender may be nil when wake is disabled.
func NewDriver(prober Prober, sender *PacketSender, log zerolog.Logger) *Driver {
	return &Driver{
		machine: NewMachine(log),
		prober:  prober,
		sender:  sender,
		log:     log,
		sleep:   time.Sleep,
	}
}

// State exposes the driver's current wake state.
func (d *Driver) State() State { return d.machine.State() }

// Run executes §4.2 steps 1-4. wakeEnabled=false skips step 2-3 entirely: a
// failed initial probe becomes ErrWorkerUnavailable immediately.
func (d *Driver) Run(ctx context.Context, cfg Config, wakeEnabled bool) error {
	d.machine.transition(StateProbing, "initial probe")
	ready, err := d.prober.Probe(ctx)
	if err != nil {
		return fmt.Errorf("wake: initial probe: %w", err)
	}
	if ready {
		d.machine.transition(StateReady, "initial probe succeeded")
		return nil
	}

	if !wakeEnabled {
		d.machine.transition(StateUnreachable, "not ready and wake disabled")
		return &ErrWorkerUnavailable{Reason: "worker not ready and wake is disabled"}
	}

	if err := d.sendMagicPackets(cfg); err != nil {
		d.machine.transition(StateUnreachable, "magic packet send failed")
		return fmt.Errorf("wake: %w", err)
	}
	d.machine.transition(StateAwake, "magic packet sent")

	return d.pollUntilReady(ctx, cfg)
}

func (d *Driver) sendMagicPackets(cfg Config) error {
	if err := d.sender.Send(cfg.MAC); err != nil {
		return err
	}
	for i := 0; i < cfg.PacketRetries; i++ {
		d.sleep(cfg.RetryInterval)
		if err := d.sender.Send(cfg.MAC); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) pollUntilReady(ctx context.Context, cfg Config) error {
	deadline := cfg.PollWindow
	elapsed := time.Duration(0)

	for elapsed < deadline {
		d.sleep(cfg.ProbeInterval)
		elapsed += cfg.ProbeInterval

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ready, err := d.prober.Probe(ctx)
		if err != nil {
			continue
		}
		if ready {
			d.machine.transition(StateReady, "poll probe succeeded")
			return nil
		}
	}

	d.machine.transition(StateUnreachable, "poll window expired")
	return &ErrWorkerUnavailable{Reason: "poll window expired without a healthy response"}
}
