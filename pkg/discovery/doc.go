// Package discovery implements mDNS/DNS-SD discovery for firefly nodes.
//
// Nodes advertise a single service type, _firefly._udp, on the UDP port
// their link-layer port is bound to. The instance name is the node name;
// TXT records carry:
//
//   - ver: protocol version ("major.minor"), required
//   - id: node id (UUID), required
//   - name: human-readable node name, optional
//
// Browsers skip nodes whose major version is incompatible with
// version.Current. Addresses learned on several interfaces are merged into
// one Service per instance.
package discovery
