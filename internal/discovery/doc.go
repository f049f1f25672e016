// Package discovery finds seed cells through etcd.
//
// Each cell registers <prefix><id> = <endpoint> under a lease that it keeps
// alive, so crashed cells disappear from the listing after the lease TTL.
package discovery
