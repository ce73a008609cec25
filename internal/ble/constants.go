package ble

const (
	// ServiceUUID is advertised by the speaker and used to filter discovery
	ServiceUUID = "0000fdc2-0000-1000-8000-00805f9b34fb"

	// CommandCharUUID is the characteristic for writing command codes (write without response)
	CommandCharUUID = "c2e758b9-0e78-41e0-b0cb-98a593193fc5"

	// ResponseCharUUID is the characteristic for command responses (notify)
	ResponseCharUUID = "b84ac9c6-29c5-46d4-bba1-9d534784330f"
)
