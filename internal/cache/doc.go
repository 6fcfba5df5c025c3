// Package cache provides the two-tier response cache.
//
// L1 is a bounded in-process LRU with lazy TTL expiry. L2 is the shared
// store visible to every server instance. Tiered combines them:
//
//   - GetWithL1 answers from L1, falls back to L2 and promotes L2 hits.
//   - SetWithL1 writes both tiers concurrently. Each tier's failure is
//     logged on its own and never returned.
//   - InvalidatePattern clears matching keys from both tiers.
//
// L1 is never authoritative: anything in it can be rebuilt from L2 or the
// origin, and its TTL is capped below L2's.
//
// Handlers opt in with the Cached wrapper instead of repeating the
// lookup-compute-store sequence:
//
//	getUser := cache.Cached(tiered, "/users.v1.Users/GetUser", time.Minute,
//	    cache.ProtoCodec(func() *usersv1.User { return new(usersv1.User) }),
//	    svc.loadUser)
package cache
