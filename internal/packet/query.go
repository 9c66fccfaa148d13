package packet

// Request builds a Request query for id. It panics on an unknown id, which
// is a programming error for the fixed ids used by the builders below.
func Request(id ID, payload []byte) Query {
	q, err := NewQuery(TypeRequest, id, payload)
	if err != nil {
		panic(err)
	}
	return q
}

// StartAPIMode switches the ring into API mode so it starts streaming.
func StartAPIMode() Query {
	return SetDeviceMode(ModeAPI)
}

// SetDeviceMode requests a device mode change.
func SetDeviceMode(m DeviceMode) Query {
	return Request(IDDeviceMode, []byte{byte(m)})
}

// BatteryQuery asks for a BatteryStatus response.
func BatteryQuery() Query { return Request(IDBatteryStatus, nil) }

// DeviceInfoQuery asks for a DeviceInfo response.
func DeviceInfoQuery() Query { return Request(IDDeviceInfo, nil) }

// IdentifyQuery makes the ring blink.
func IdentifyQuery() Query { return Request(IDIdentify, nil) }

// RecenterQuery resets the orientation reference.
func RecenterQuery() Query { return Request(IDRecenter, nil) }

// ModifyAPIConfig selects the streams sent in API mode, e.g. raw data or
// the spectrogram.
func ModifyAPIConfig(c APIConfig) Query {
	b, _ := c.MarshalBinary()
	return Request(IDAPIConfig, b)
}
