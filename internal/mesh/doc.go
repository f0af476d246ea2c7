// Package mesh implements the store-and-forward log of mesh network
// messages relayed through the hub.
//
// The hub is a passive recorder. It appends every mesh envelope it sees,
// byte-for-byte, and answers history queries. It does not validate node
// identities and does not deliver messages to their destination; an
// external consumer reads the log for fan-out.
package mesh
