package discovery

import (
	"fmt"
	"strings"

	"github.com/meshwire-protocol/meshwire-go/pkg/wire"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeNodeTXT creates the TXT records a node advertises.
func EncodeNodeTXT(id wire.PeerID, name string) TXTRecordMap {
	txt := make(TXTRecordMap)

	txt[TXTKeyVersion] = ProtocolVersion
	txt[TXTKeyID] = id.String()

	if name != "" {
		txt[TXTKeyName] = name
	}

	return txt
}

// DecodeNodeTXT parses a node's TXT records.
func DecodeNodeTXT(txt TXTRecordMap) (wire.PeerID, string, error) {
	version, ok := txt[TXTKeyVersion]
	if !ok {
		return wire.ZeroPeerID, "", fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	if version != ProtocolVersion {
		return wire.ZeroPeerID, "", fmt.Errorf("%w: %q", ErrVersionMismatch, version)
	}

	raw, ok := txt[TXTKeyID]
	if !ok {
		return wire.ZeroPeerID, "", fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyID)
	}
	id, err := wire.ParsePeerID(raw)
	if err != nil {
		return wire.ZeroPeerID, "", err
	}

	return id, txt[TXTKeyName], nil
}

// InstanceName derives the mDNS instance name for a node.
func InstanceName(id wire.PeerID, name string) string {
	if name == "" {
		name = "meshwire"
	}
	instance := fmt.Sprintf("%s-%s", name, id.Short())
	if len(instance) > MaxInstanceNameLen {
		instance = instance[:MaxInstanceNameLen]
	}
	return instance
}

// TXTRecordsToStrings converts a TXT map to "key=value" strings for mDNS.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	return result
}

// StringsToTXTRecords parses "key=value" strings from mDNS. Strings
// without a key are skipped.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if !found || k == "" {
			continue
		}
		txt[k] = v
	}
	return txt
}
