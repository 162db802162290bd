package domain

import (
	"testing"
	"time"
)

func ptr(v float64) *float64 { return &v }

func TestChargePointDerivedFlags(t *testing.T) {
	cp := &ChargePoint{
		PhysicalStatus:    PhysicalStatusAvailable,
		OperationalStatus: OperationalEnabled,
	}
	if cp.IsConfigured() {
		t.Error("charge point without location/pricing must not be configured")
	}
	if !cp.IsAvailable() {
		t.Error("available+enabled charge point must be available")
	}

	cp.Latitude, cp.Longitude = ptr(4.6), ptr(-74.08)
	if cp.IsConfigured() {
		t.Error("location without pricing is not configured")
	}
	cp.PricePerKWh = ptr(650)
	if !cp.IsConfigured() {
		t.Error("location and pricing should mean configured")
	}

	cp.OperationalStatus = OperationalDisabled
	if cp.IsAvailable() {
		t.Error("disabled charge point must not be available")
	}
	cp.OperationalStatus = OperationalEnabled
	cp.PhysicalStatus = PhysicalStatusCharging
	if cp.IsAvailable() {
		t.Error("charging charge point must not be available")
	}
}

func TestSessionEnergy(t *testing.T) {
	s := &ChargingSession{MeterStart: 1000}
	if got := s.EnergyKWh(); got != 0 {
		t.Errorf("open session energy = %v, want 0", got)
	}

	stop := 1500
	s.MeterStop = &stop
	if got := s.EnergyKWh(); got != 0.5 {
		t.Errorf("energy = %v, want 0.5", got)
	}

	below := 900
	s.MeterStop = &below
	if got := s.EnergyKWh(); got != 0 {
		t.Errorf("meter_stop below meter_start must yield 0, got %v", got)
	}
}

func TestRoundCost(t *testing.T) {
	cases := []struct {
		raw  float64
		want float64
	}{
		{0, 0},
		{249.994, 249.99},
		{249.995, 250.00},
		{0.5 * 650, 325},
		{1.0 / 3.0 * 100, 33.33},
	}
	for _, tc := range cases {
		if got := RoundCost(tc.raw); got != tc.want {
			t.Errorf("RoundCost(%v) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestIdTagEffectiveStatus(t *testing.T) {
	now := time.Now().UTC()
	tag := &IdTag{Tag: "T1", Status: AuthorizationAccepted}
	if got := tag.EffectiveStatus(now); got != AuthorizationAccepted {
		t.Errorf("expected Accepted, got %q", got)
	}

	past := now.Add(-time.Hour)
	tag.Expiry = &past
	if got := tag.EffectiveStatus(now); got != AuthorizationExpired {
		t.Errorf("expected Expired, got %q", got)
	}

	future := now.Add(time.Hour)
	tag.Expiry = &future
	if got := tag.EffectiveStatus(now); got != AuthorizationAccepted {
		t.Errorf("unexpired tag should keep its status, got %q", got)
	}
}

func TestValidPhysicalStatus(t *testing.T) {
	for _, valid := range []string{"Available", "Charging", "Faulted", "SuspendedEVSE"} {
		if !ValidPhysicalStatus(valid) {
			t.Errorf("%q should be valid", valid)
		}
	}
	for _, invalid := range []string{"", "Sleeping", "available"} {
		if ValidPhysicalStatus(invalid) {
			t.Errorf("%q should be invalid", invalid)
		}
	}
}
