/*
Package dyndns keeps a DNS record pointed at the host's public IP address.

Usage will always start with [New],
which returns a configured [Client].
New requires the name of the record to keep in sync and a [Provider] registered with [UsingCloudflare] or [UsingProvider].
Additional client configuration options are listed in the docs for New.

The public address is determined by probing several independent IP echo
services concurrently. By default the first service to answer wins; with
[WithVerify] the client instead waits for every probe and requires a strict
absolute majority of the configured services to agree before trusting the
result.
*/
package dyndns
