package records

import (
	"encoding/binary"

	"ticket-validation-api/internal/compact"
)

// ParseEnvironment unpacks an environment/holder record.
func ParseEnvironment(f Format, b []byte) (EnvironmentHolder, error) {
	if err := checkSize("environment", b, f.RecordSize()); err != nil {
		return EnvironmentHolder{}, err
	}
	return EnvironmentHolder{
		VersionNumber:     compact.DecodeVersion(b[0]),
		ApplicationNumber: binary.BigEndian.Uint32(b[1:5]),
		IssuingDate:       compact.DecodeDate(b[5:7]),
		EndDate:           compact.DecodeDate(b[7:9]),
		HolderCompany:     b[9],
		HolderIDNumber:    binary.BigEndian.Uint32(b[10:14]),
	}, nil
}

// GenerateEnvironment packs an environment/holder record.
func GenerateEnvironment(f Format, e EnvironmentHolder) []byte {
	b := make([]byte, f.RecordSize())
	b[0] = e.VersionNumber.Encode()
	binary.BigEndian.PutUint32(b[1:5], e.ApplicationNumber)
	issuing := e.IssuingDate.Encode()
	copy(b[5:7], issuing[:])
	end := e.EndDate.Encode()
	copy(b[7:9], end[:])
	b[9] = e.HolderCompany
	binary.BigEndian.PutUint32(b[10:14], e.HolderIDNumber)
	return b
}

// ParseEvent unpacks an event record.
func ParseEvent(f Format, b []byte) (Event, error) {
	if err := checkSize("event", b, f.RecordSize()); err != nil {
		return Event{}, err
	}
	ev := Event{
		VersionNumber: compact.DecodeVersion(b[0]),
		DateStamp:     compact.DecodeDate(b[1:3]),
		TimeStamp:     compact.DecodeTime(b[3:5]),
		Location:      binary.BigEndian.Uint32(b[5:9]),
		ContractUsed:  b[9],
	}
	slots := 4
	if f == FormatStorage {
		slots = 1
	}
	for i := range ev.Priorities {
		if i < slots {
			ev.Priorities[i] = compact.DecodePriority(b[10+i])
		} else {
			ev.Priorities[i] = compact.PriorityForbidden
		}
	}
	return ev, nil
}

// GenerateEvent packs an event record. The storage format keeps slot 1 only.
func GenerateEvent(f Format, ev Event) []byte {
	b := make([]byte, f.RecordSize())
	b[0] = ev.VersionNumber.Encode()
	date := ev.DateStamp.Encode()
	copy(b[1:3], date[:])
	tod := ev.TimeStamp.Encode()
	copy(b[3:5], tod[:])
	binary.BigEndian.PutUint32(b[5:9], ev.Location)
	b[9] = ev.ContractUsed
	slots := 4
	if f == FormatStorage {
		slots = 1
	}
	for i := 0; i < slots; i++ {
		b[10+i] = ev.Priorities[i].Encode()
	}
	return b
}

// ParseContract unpacks a contract record.
func ParseContract(f Format, b []byte) (Contract, error) {
	if err := checkSize("contract", b, f.RecordSize()); err != nil {
		return Contract{}, err
	}
	c := Contract{
		VersionNumber:   compact.DecodeVersion(b[0]),
		Tariff:          compact.DecodePriority(b[1]),
		SaleDate:        compact.DecodeDate(b[2:4]),
		ValidityEndDate: compact.DecodeDate(b[4:6]),
		SaleSAM:         binary.BigEndian.Uint32(b[6:10]),
	}
	if f == FormatStorage {
		c.Authenticator = uint24(b[10:13])
		if c.Tariff.IsCounterBased() {
			v := int(uint24(b[13:16]))
			c.Counter = &v
		}
		return c, nil
	}
	c.SaleCounter = uint24(b[10:13])
	c.AuthKVC = b[13]
	c.Authenticator = uint24(b[14:17])
	return c, nil
}

// GenerateContract packs a contract record. The storage format carries
// the counter inline.
func GenerateContract(f Format, c Contract) []byte {
	b := make([]byte, f.RecordSize())
	b[0] = c.VersionNumber.Encode()
	b[1] = c.Tariff.Encode()
	sale := c.SaleDate.Encode()
	copy(b[2:4], sale[:])
	end := c.ValidityEndDate.Encode()
	copy(b[4:6], end[:])
	binary.BigEndian.PutUint32(b[6:10], c.SaleSAM)
	if f == FormatStorage {
		putUint24(b[10:13], c.Authenticator&MaxCounterValue)
		putUint24(b[13:16], clampCounter(c.CounterValue()))
		return b
	}
	putUint24(b[10:13], c.SaleCounter&MaxCounterValue)
	b[13] = c.AuthKVC
	putUint24(b[14:17], c.Authenticator&MaxCounterValue)
	return b
}

// ParseCounterFile unpacks the Calypso counter file: consecutive 3-byte counters.
func ParseCounterFile(b []byte) ([]int, error) {
	if len(b) == 0 || len(b)%3 != 0 {
		want := (len(b)/3 + 1) * 3
		return nil, &MalformedRecordError{Record: "counter", Want: want, Got: len(b)}
	}
	values := make([]int, len(b)/3)
	for i := range values {
		values[i] = int(uint24(b[i*3 : i*3+3]))
	}
	return values, nil
}

// GenerateCounterFile packs counter values, clamped to the 3-byte range.
func GenerateCounterFile(values []int) []byte {
	b := make([]byte, len(values)*3)
	for i, v := range values {
		putUint24(b[i*3:i*3+3], clampCounter(v))
	}
	return b
}
