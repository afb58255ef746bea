package bleuio_test

import (
	"testing"

	"github.com/Edgewaretech/edgeware-bluegate/internal/bleuio"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"AA:BB:CC:DD:EE:FF", "aabbccddeeff"},
		{"aa:bb:cc:dd:ee:ff", "aabbccddeeff"},
		{"AABBCCDDEEFF", "aabbccddeeff"},
		{"aabbccddeeff", "aabbccddeeff"},
		{"Aa:bB:cc:DD:ee:FF", "aabbccddeeff"},
		{"", ""},
		{"aabbccddeef", ""},
		{"aa-bb-cc-dd-ee-ff", ""},
		{"aa:bb:cc:dd:ee:fg", ""},
		{" aabbccddeeff", ""},
		{"aa:bbcc:dd:ee:ff", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, bleuio.NormalizeAddress(tt.input))
		})
	}
}

func TestNormalizeAddress_Idempotent(t *testing.T) {
	for _, in := range []string{"AA:BB:CC:DD:EE:FF", "112233445566", "bogus"} {
		once := bleuio.NormalizeAddress(in)
		assert.Equal(t, once, bleuio.NormalizeAddress(once))
	}
}

func TestColonAddress(t *testing.T) {
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", bleuio.ColonAddress("aabbccddeeff"))
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", bleuio.ColonAddress("aa:bb:cc:dd:ee:ff"))
	assert.Equal(t, "", bleuio.ColonAddress("not-an-address"))

	// bare and colon forms round-trip through each other
	for _, bare := range []string{"0123456789ab", "ffffffffffff", "000000000000"} {
		assert.Equal(t, bare, bleuio.NormalizeAddress(bleuio.ColonAddress(bare)))
	}
}

func TestDeviceAddr(t *testing.T) {
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", bleuio.DeviceAddr("AABBCCDDEEFF").String())
}

func TestIsValidHandle(t *testing.T) {
	assert.True(t, bleuio.IsValidHandle("002a"))
	assert.True(t, bleuio.IsValidHandle("002A"))
	assert.False(t, bleuio.IsValidHandle("2a"))
	assert.False(t, bleuio.IsValidHandle("0x2a"))
	assert.False(t, bleuio.IsValidHandle("0002a"))
	assert.False(t, bleuio.IsValidHandle(""))
}

func TestIsValidHexData(t *testing.T) {
	assert.True(t, bleuio.IsValidHexData("48656c6c6f"))
	assert.True(t, bleuio.IsValidHexData("ABCDEF"))
	assert.False(t, bleuio.IsValidHexData("zz"))
	assert.False(t, bleuio.IsValidHexData("abc"))
	assert.False(t, bleuio.IsValidHexData(""))
}

func TestCommands(t *testing.T) {
	assert.Equal(t, "AT+GAPCONNECT=[1]AA:BB:CC:DD:EE:FF=30:30:0:1000:", bleuio.ConnectCommand("aabbccddeeff", false))
	assert.Equal(t, "AT+GAPCONNECT=[0]AA:BB:CC:DD:EE:FF=30:30:0:1000:", bleuio.ConnectCommand("aabbccddeeff", true))
	assert.Equal(t, "AT+SETNOTI=002c", bleuio.SubscribeCommand("002c"))
	assert.Equal(t, "AT+GATTCWRITEWRB=002a 48656c6c6f", bleuio.WriteWithResponseCommand("002a", "48656c6c6f"))
	assert.Equal(t, "AT+GATTCWRITEB=002a 0102", bleuio.WriteCommand("002a", "0102"))
}

func TestFirmwareSupport(t *testing.T) {
	for _, v := range []string{"2.1.0", "2.1.3", "2.2.1"} {
		assert.True(t, bleuio.IsSupportedFirmware(v), v)
	}
	assert.False(t, bleuio.IsSupportedFirmware("2.2.0"))
	assert.True(t, bleuio.RetriesDroppedLinks("2.2.1"))
	assert.False(t, bleuio.RetriesDroppedLinks("2.1.3"))
}
