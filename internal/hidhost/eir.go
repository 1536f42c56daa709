package hidhost

// Extended inquiry response limits and the field types the decoder cares about.
const (
	// MaxEIRLength bounds how far into a record the decoder will read.
	MaxEIRLength = 240

	// MaxNameLength is the largest device name a BR/EDR device can report.
	MaxNameLength = 248

	EIRTypeShortName    = 0x08 // Shortened Local Name
	EIRTypeCompleteName = 0x09 // Complete Local Name
)

// NameFromEIR walks the (length, type, value) fields of an extended inquiry
// response and returns the first complete or shortened local name.
//
// The name is truncated to capacity-1 bytes, leaving room for the terminator a
// fixed C buffer of that capacity would need. A zero length field ends the
// record. A field that would run past the end of the record, or past
// MaxEIRLength, makes the record malformed and the lookup fails.
func NameFromEIR(record []byte, capacity int) (string, bool) {
	if capacity < 1 {
		return "", false
	}
	end := len(record)
	if end > MaxEIRLength {
		end = MaxEIRLength
	}

	for i := 0; i < end; {
		l := int(record[i])
		if l == 0 {
			break
		}
		// type byte plus l-1 value bytes must fit inside the record
		if i+1+l > end {
			return "", false
		}
		typ := record[i+1]
		value := record[i+2 : i+1+l]
		if typ == EIRTypeCompleteName || typ == EIRTypeShortName {
			if len(value) > capacity-1 {
				value = value[:capacity-1]
			}
			return string(value), true
		}
		i += 1 + l
	}
	return "", false
}

// AppendEIRField appends one (length, type, value) field to record. Values
// longer than a single field can carry are cut to 254 bytes.
func AppendEIRField(record []byte, typ byte, value []byte) []byte {
	if len(value) > 254 {
		value = value[:254]
	}
	record = append(record, byte(len(value)+1), typ)
	return append(record, value...)
}

// NameRecord builds a minimal record carrying only a complete local name.
// Stacks that surface the name as a property rather than raw inquiry data use
// it so every discovery goes through NameFromEIR.
func NameRecord(name string) []byte {
	if name == "" {
		return nil
	}
	return AppendEIRField(nil, EIRTypeCompleteName, []byte(name))
}
