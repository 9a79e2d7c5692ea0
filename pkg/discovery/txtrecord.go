package discovery

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/relaymq/relay-go/pkg/wire"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeBrokerTXT creates the TXT records for a broker.
func EncodeBrokerTXT(info *BrokerInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyVersion:      strconv.FormatUint(uint64(info.Version), 10),
		TXTKeyCapabilities: encodeCapabilities(info.Capabilities),
	}
	if info.MaxMessageLength > 0 {
		txt[TXTKeyMaxMessage] = strconv.FormatUint(uint64(info.MaxMessageLength), 10)
	}
	return txt
}

// DecodeBrokerTXT parses broker TXT records. ver and cap are required.
func DecodeBrokerTXT(txt TXTRecordMap) (*BrokerInfo, error) {
	info := &BrokerInfo{}

	verStr, ok := txt[TXTKeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	ver, err := strconv.ParseUint(verStr, 10, 8)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyVersion, verStr)
	}
	info.Version = uint8(ver)

	capStr, ok := txt[TXTKeyCapabilities]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyCapabilities)
	}
	info.Capabilities, err = wire.ParseCapability(capStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTXTRecord, err)
	}

	if maxStr, ok := txt[TXTKeyMaxMessage]; ok {
		m, err := strconv.ParseUint(maxStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyMaxMessage, maxStr)
		}
		info.MaxMessageLength = uint32(m)
	}

	return info, nil
}

func encodeCapabilities(c wire.Capability) string {
	var parts []string
	if c.Has(wire.CapPush) {
		parts = append(parts, "push")
	}
	if c.Has(wire.CapPull) {
		parts = append(parts, "pull")
	}
	if c.Has(wire.CapTLS) {
		parts = append(parts, "tls")
	}
	return strings.Join(parts, ",")
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, _ := strings.Cut(s, "=")
		if k != "" {
			txt[k] = v
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTXTRecord)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
