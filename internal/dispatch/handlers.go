package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sstash/sstash/internal/sstasherr"
	"github.com/sstash/sstash/internal/wire"
)

func (d *Dispatcher) handleGet(cmd *wire.Command, readOnly bool) ([]byte, error) {
	s, err := d.mgr.Get(cmd.StashName())
	if err != nil {
		return nil, err
	}
	value, ok, err := s.Get(cmd.Args[0], readOnly)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sstasherr.KeyNotFound(cmd.Args[0])
	}
	return value, nil
}

func (d *Dispatcher) handleInfo(cmd *wire.Command) ([]byte, error) {
	s, err := d.mgr.Get(cmd.StashName())
	if err != nil {
		return nil, err
	}
	keyCount, err := s.KeyCount()
	if err != nil {
		return nil, err
	}
	info := fmt.Sprintf(
		"name=%s\nmax_key_count=%d\noff_heap=%t\nkey_count=%d\nbackup_dirty=%t\n",
		s.Name, s.MaxKeyCount, s.OffHeap, keyCount, s.Dirty(),
	)
	return []byte(info), nil
}

func (d *Dispatcher) handleSet(cmd *wire.Command) error {
	s, err := d.mgr.Get(cmd.StashName())
	if err != nil {
		return err
	}
	key, value := cmd.Args[0], []byte(cmd.Args[1])
	return s.Set(key, value, d.afterForward(cmd))
}

func (d *Dispatcher) handleSetTTL(cmd *wire.Command) error {
	s, err := d.mgr.Get(cmd.StashName())
	if err != nil {
		return err
	}
	key, value := cmd.Args[0], []byte(cmd.Args[1])
	ttlMs, convErr := strconv.ParseUint(cmd.Args[2], 10, 64)
	if convErr != nil {
		return sstasherr.Protocol("invalid ttl_ms: %q", cmd.Args[2])
	}
	return s.SetWithTTL(key, value, ttlMs, d.afterForward(cmd))
}

func (d *Dispatcher) handleDelete(cmd *wire.Command) error {
	s, err := d.mgr.Get(cmd.StashName())
	if err != nil {
		return err
	}
	return s.Delete(cmd.Args[0], d.afterForward(cmd))
}

func (d *Dispatcher) handleUpdateTTL(cmd *wire.Command) error {
	s, err := d.mgr.Get(cmd.StashName())
	if err != nil {
		return err
	}
	ttlMs, convErr := strconv.ParseUint(cmd.Args[1], 10, 64)
	if convErr != nil {
		return sstasherr.Protocol("invalid ttl_ms: %q", cmd.Args[1])
	}
	_, err = s.UpdateTTL(cmd.Args[0], ttlMs, d.afterForward(cmd))
	return err
}

func (d *Dispatcher) handleCreate(cmd *wire.Command) error {
	name := cmd.Args[0]
	maxKeyCount, convErr := strconv.Atoi(cmd.Args[1])
	if convErr != nil {
		return sstasherr.Protocol("invalid max_key_count: %q", cmd.Args[1])
	}
	offHeap, convErr := strconv.ParseBool(strings.ToLower(cmd.Args[2]))
	if convErr != nil {
		return sstasherr.Protocol("invalid off_heap: %q", cmd.Args[2])
	}
	if err := d.mgr.Create(name, offHeap, maxKeyCount); err != nil {
		return err
	}
	if d.lifecycle != nil {
		if s, err := d.mgr.Get(name); err == nil {
			d.lifecycle.Created(name, s)
		}
	}
	if d.forwarder != nil {
		d.forwarder.Forward(cmd)
	}
	return nil
}

func (d *Dispatcher) handleDrop(cmd *wire.Command) error {
	name := cmd.Args[0]
	if err := d.mgr.Drop(name); err != nil {
		return err
	}
	if d.lifecycle != nil {
		d.lifecycle.Dropped(name)
	}
	if d.forwarder != nil {
		d.forwarder.Forward(cmd)
	}
	return nil
}
