package records

import (
	"errors"
	"testing"

	"ticket-validation-api/internal/compact"
)

func TestEnvironment_RoundTrip(t *testing.T) {
	env := EnvironmentHolder{
		VersionNumber:     compact.VersionCurrent,
		ApplicationNumber: 0xCAFE0001,
		IssuingDate:       compact.MustDate(2024, 1, 15),
		EndDate:           compact.MustDate(2030, 6, 30),
		HolderCompany:     7,
		HolderIDNumber:    123456,
	}
	for _, f := range []Format{FormatCalypso, FormatStorage} {
		b := GenerateEnvironment(f, env)
		if len(b) != f.RecordSize() {
			t.Fatalf("Expected %d bytes, got %d", f.RecordSize(), len(b))
		}
		got, err := ParseEnvironment(f, b)
		if err != nil {
			t.Fatalf("Failed to parse %s environment: %v", f, err)
		}
		if got != env {
			t.Errorf("Expected %+v, got %+v", env, got)
		}
	}
}

func TestEnvironment_Layout(t *testing.T) {
	b := GenerateEnvironment(FormatCalypso, EnvironmentHolder{
		VersionNumber: compact.VersionCurrent,
		EndDate:       compact.CompactDate(0x1234),
	})
	if b[0] != 0x01 {
		t.Errorf("Expected version at offset 0, got 0x%02X", b[0])
	}
	if b[7] != 0x12 || b[8] != 0x34 {
		t.Errorf("Expected end date big-endian at offset 7, got % X", b[7:9])
	}
	for i := 14; i < len(b); i++ {
		if b[i] != 0 {
			t.Fatalf("Expected zero padding at offset %d, got 0x%02X", i, b[i])
		}
	}
}

func TestEvent_CalypsoKeepsFourSlots(t *testing.T) {
	ev := Event{
		VersionNumber: compact.VersionCurrent,
		DateStamp:     compact.MustDate(2026, 10, 19),
		TimeStamp:     compact.CompactTime(9*60 + 41),
		Location:      5,
		ContractUsed:  2,
		Priorities: [4]compact.PriorityCode{
			compact.PrioritySeasonPass,
			compact.PriorityMultiTrip,
			compact.PriorityExpired,
			compact.PriorityStoredValue,
		},
	}
	got, err := ParseEvent(FormatCalypso, GenerateEvent(FormatCalypso, ev))
	if err != nil {
		t.Fatalf("Failed to parse event: %v", err)
	}
	if got != ev {
		t.Errorf("Expected %+v, got %+v", ev, got)
	}
}

func TestEvent_StorageKeepsFirstSlotOnly(t *testing.T) {
	ev := Event{
		VersionNumber: compact.VersionCurrent,
		DateStamp:     compact.MustDate(2026, 10, 19),
		TimeStamp:     compact.CompactTime(600),
		Location:      11,
		ContractUsed:  1,
		Priorities: [4]compact.PriorityCode{
			compact.PriorityMultiTrip,
			compact.PrioritySeasonPass,
			compact.PrioritySeasonPass,
			compact.PrioritySeasonPass,
		},
	}
	b := GenerateEvent(FormatStorage, ev)
	if b[11] != 0 || b[12] != 0 || b[13] != 0 {
		t.Errorf("Expected slots 2-4 not to be written, got % X", b[11:14])
	}
	got, err := ParseEvent(FormatStorage, b)
	if err != nil {
		t.Fatalf("Failed to parse event: %v", err)
	}
	if got.Priorities[0] != compact.PriorityMultiTrip {
		t.Errorf("Expected MULTI_TRIP in slot 1, got %v", got.Priorities[0])
	}
	for i := 1; i < 4; i++ {
		if got.Priorities[i] != compact.PriorityForbidden {
			t.Errorf("Expected FORBIDDEN in slot %d, got %v", i+1, got.Priorities[i])
		}
	}
}

func TestEvent_NeverWritten(t *testing.T) {
	ev, err := ParseEvent(FormatCalypso, make([]byte, CalypsoRecordSize))
	if err != nil {
		t.Fatalf("Failed to parse blank event: %v", err)
	}
	if ev.VersionNumber.Class() != compact.VersionClassUndefined {
		t.Errorf("Expected undefined version, got %v", ev.VersionNumber)
	}
	if !ev.DateStamp.IsUndefined() {
		t.Errorf("Expected undefined date, got %v", ev.DateStamp)
	}
}

func TestContract_CalypsoRoundTrip(t *testing.T) {
	c := Contract{
		VersionNumber:   compact.VersionCurrent,
		Tariff:          compact.PriorityStoredValue,
		SaleDate:        compact.MustDate(2025, 2, 1),
		ValidityEndDate: compact.MustDate(2027, 2, 1),
		SaleSAM:         0x0A0B0C0D,
		SaleCounter:     0x010203,
		AuthKVC:         0x7E,
		Authenticator:   0xABCDEF,
	}
	got, err := ParseContract(FormatCalypso, GenerateContract(FormatCalypso, c))
	if err != nil {
		t.Fatalf("Failed to parse contract: %v", err)
	}
	if got.Counter != nil {
		t.Errorf("Expected no inline counter on Calypso, got %d", *got.Counter)
	}
	if got.Tariff != c.Tariff || got.ValidityEndDate != c.ValidityEndDate ||
		got.SaleCounter != c.SaleCounter || got.Authenticator != c.Authenticator || got.AuthKVC != c.AuthKVC {
		t.Errorf("Expected %+v, got %+v", c, got)
	}
}

func TestContract_StorageInlineCounter(t *testing.T) {
	counter := 42
	c := Contract{
		VersionNumber:   compact.VersionCurrent,
		Tariff:          compact.PriorityMultiTrip,
		ValidityEndDate: compact.MustDate(2027, 1, 1),
		Authenticator:   0x112233,
		Counter:         &counter,
	}
	b := GenerateContract(FormatStorage, c)
	if b[13] != 0 || b[14] != 0 || b[15] != 42 {
		t.Errorf("Expected counter at offset 13, got % X", b[13:16])
	}
	got, err := ParseContract(FormatStorage, b)
	if err != nil {
		t.Fatalf("Failed to parse contract: %v", err)
	}
	if got.Counter == nil || *got.Counter != 42 {
		t.Fatalf("Expected counter 42, got %v", got.Counter)
	}
	if got.Authenticator != 0x112233 {
		t.Errorf("Expected authenticator 0x112233, got 0x%06X", got.Authenticator)
	}
}

func TestContract_StorageSeasonPassHasNoCounter(t *testing.T) {
	c := Contract{VersionNumber: compact.VersionCurrent, Tariff: compact.PrioritySeasonPass}
	got, err := ParseContract(FormatStorage, GenerateContract(FormatStorage, c))
	if err != nil {
		t.Fatalf("Failed to parse contract: %v", err)
	}
	if got.Counter != nil {
		t.Errorf("Expected no counter for a season pass, got %d", *got.Counter)
	}
	if got.CounterValue() != 0 {
		t.Errorf("Expected absent counter to read as 0, got %d", got.CounterValue())
	}
}

func TestCounterFile(t *testing.T) {
	values := []int{5, 0, 0xFFFFFF, 300}
	got, err := ParseCounterFile(GenerateCounterFile(values))
	if err != nil {
		t.Fatalf("Failed to parse counters: %v", err)
	}
	if len(got) != len(values) {
		t.Fatalf("Expected %d counters, got %d", len(values), len(got))
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("Expected counter %d to be %d, got %d", i+1, values[i], got[i])
		}
	}
}

func TestCounterFile_Clamps(t *testing.T) {
	got, _ := ParseCounterFile(GenerateCounterFile([]int{-3, MaxCounterValue + 10}))
	if got[0] != 0 || got[1] != MaxCounterValue {
		t.Errorf("Expected [0 %d], got %v", MaxCounterValue, got)
	}
}

func TestMalformedRecord(t *testing.T) {
	_, err := ParseEnvironment(FormatCalypso, make([]byte, 16))
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("Expected ErrMalformedRecord, got %v", err)
	}
	var mr *MalformedRecordError
	if !errors.As(err, &mr) {
		t.Fatalf("Expected *MalformedRecordError, got %T", err)
	}
	if mr.Want != 29 || mr.Got != 16 || mr.Record != "environment" {
		t.Errorf("Unexpected error details: %+v", mr)
	}

	if _, err := ParseEvent(FormatStorage, make([]byte, 29)); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("Expected ErrMalformedRecord for event, got %v", err)
	}
	if _, err := ParseContract(FormatStorage, nil); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("Expected ErrMalformedRecord for contract, got %v", err)
	}
	if _, err := ParseCounterFile([]byte{1, 2}); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("Expected ErrMalformedRecord for counters, got %v", err)
	}
}
