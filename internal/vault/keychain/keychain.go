// Package keychain implements the macOS Keychain vault source.
//
// Secrets are stored as generic passwords with:
//   - Service: "tessera" by default (configurable per source)
//   - Account: the entry label (e.g. "bob@github")
//   - Label: "tessera: <label>" (for Keychain Access.app visibility)
//
// Items are scoped with kSecAttrAccessibleWhenUnlockedThisDeviceOnly:
// never synced to iCloud, never available when the machine is locked.
// Extra service names can be searched as read-through fallbacks for
// entries written by other authenticator tools.
package keychain

// DefaultService is the Keychain service attribute for tessera secrets.
const DefaultService = "tessera"

// refSeparator joins service and account into an item handle. NUL cannot
// appear in either part.
const refSeparator = "\x00"
