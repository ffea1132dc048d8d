// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

package ig4_test

import (
	"errors"
	"testing"

	"github.com/Seagate/lpss-lib/pkg/ig4"
	"github.com/Seagate/lpss-lib/pkg/iicbus"
	"github.com/Seagate/lpss-lib/pkg/lpss"
	"github.com/Seagate/lpss-lib/pkg/newbus"
	"github.com/Seagate/lpss-lib/pkg/newbus/simbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engine struct {
	cfg       ig4.EngineConfig
	detachErr error
	stopped   bool
}

func (e *engine) Attach(cfg ig4.EngineConfig) error { e.cfg = cfg; return nil }
func (e *engine) Detach() error {
	if e.detachErr != nil {
		return e.detachErr
	}
	e.stopped = true
	return nil
}
func (e *engine) Transfer(msgs []iicbus.Msg) error          { return nil }
func (e *engine) Reset(speed iicbus.Speed, addr uint8) error { return nil }

func setup(t *testing.T, device uint16, caps uint32, newEngine func() ig4.Engine) (*newbus.Registry, *newbus.Device) {
	t.Helper()
	reg := newbus.NewRegistry()
	require.NoError(t, lpss.Register(reg))
	require.NoError(t, ig4.Register(reg, newEngine))

	host := simbus.New()
	root := newbus.NewRoot("pci", host)
	dev := host.AddFunction(root, simbus.Function{Vendor: lpss.PCI_VENDOR_INTEL, Device: device, IRQ: 20})
	host.Poke32(dev, lpss.LPSS_PRIV_OFFSET+lpss.LPSS_PRIV_CAPS, caps)
	require.NoError(t, reg.ProbeAndAttach(dev))
	return reg, dev
}

func TestEngineConfigFromProfile(t *testing.T) {
	e := &engine{}
	// APL I2C
	reg, dev := setup(t, 0x5aac, 0x000, func() ig4.Engine { return e })

	child := lpss.Child(dev)
	require.NotNil(t, child)
	require.True(t, child.Attached())
	assert.Equal(t, "Intel LPSS I2C Controller", child.Desc())

	assert.Equal(t, uint64(133000000), e.cfg.ClockRate)
	v, ok := e.cfg.Property("i2c-sda-hold-time-ns")
	assert.True(t, ok)
	assert.Equal(t, uint32(207), v)
	v, ok = e.cfg.Property("i2c-scl-falling-time-ns")
	assert.True(t, ok)
	assert.Equal(t, uint32(208), v)
	_, ok = e.cfg.Property("reg-shift")
	assert.False(t, ok)

	require.NotNil(t, e.cfg.Regs)
	assert.Equal(t, "dev", e.cfg.Regs.Name())
	assert.Equal(t, uint64(lpss.LPSS_DEV_SIZE), e.cfg.Regs.Size())

	// the engine gets a copy of the table
	e.cfg.Properties[0].Value = 1
	p, _ := lpss.LookupProfile(lpss.PCI_VENDOR_INTEL, 0x5aac)
	assert.Equal(t, uint32(207), p.Info.Properties[0].Value)

	require.NoError(t, reg.Detach(dev))
	assert.True(t, e.stopped)
}

func TestNoEngineDeclines(t *testing.T) {
	drv := ig4.DriverClass(nil).New()
	_, err := drv.Probe(nil)
	assert.ErrorIs(t, err, ig4.ErrNoEngine)

	_, dev := setup(t, 0xa368, 0x000, nil)
	child := lpss.Child(dev)
	require.NotNil(t, child)
	assert.False(t, child.Attached())
}

func TestProbeIsNoWildcard(t *testing.T) {
	drv := ig4.DriverClass(func() ig4.Engine { return &engine{} }).New()
	pri, err := drv.Probe(nil)
	require.NoError(t, err)
	assert.Equal(t, newbus.BUS_PROBE_NOWILDCARD, pri)

	reg, dev := setup(t, 0xa368, 0x000, func() ig4.Engine { return &engine{} })
	stray := dev.AddChild(1, "", -1)
	assert.ErrorIs(t, reg.ProbeAndAttach(stray), newbus.ErrNoDriver)
}

func TestIdentifyOnlyUnderI2C(t *testing.T) {
	for _, caps := range []uint32{0x010, 0x020, 0x120} {
		reg, dev := setup(t, 0xa368, caps, func() ig4.Engine { return &engine{} })
		require.NoError(t, reg.AttachChildren(dev))
		assert.Empty(t, dev.Children(), "caps 0x%x", caps)
	}

	reg, dev := setup(t, 0xa368, 0x100, func() ig4.Engine { return &engine{} })
	require.NoError(t, reg.AttachChildren(dev))
	assert.Len(t, dev.Children(), 1)
}

func TestAttachRejectsForeignParent(t *testing.T) {
	root := newbus.NewRoot("lpss", nil)
	dev := root.AddChild(0, lpss.I2C_CHILD_NAME, -1)
	drv := ig4.DriverClass(func() ig4.Engine { return &engine{} }).New()
	assert.ErrorIs(t, drv.Attach(dev), ig4.ErrBadParent)

	d := drv.(*ig4.Driver)
	assert.ErrorIs(t, d.Transfer(nil), ig4.ErrEngineStopped)
	assert.ErrorIs(t, d.Reset(iicbus.IIC_SLOW, 0), ig4.ErrEngineStopped)
}

func TestDetachRefusedKeepsChild(t *testing.T) {
	e := &engine{detachErr: errors.New("busy")}
	reg, dev := setup(t, 0xa368, 0x000, func() ig4.Engine { return e })
	child := lpss.Child(dev)

	assert.Error(t, reg.Detach(child))
	assert.True(t, child.Attached())

	e.detachErr = nil
	require.NoError(t, reg.Detach(child))
	assert.False(t, child.Attached())
	require.NoError(t, reg.Detach(dev))
}
