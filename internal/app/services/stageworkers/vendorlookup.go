package stageworkers

import (
	"context"
	"time"

	"github.com/R3E-Network/service_layer/infrastructure/cache"
	"github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/internal/app/domain/vendor"
	"github.com/R3E-Network/service_layer/internal/app/storage"
)

// vendorProfileCache holds resolved vendor profiles for a short TTL.
// Validation+Scoring and Routing both resolve the same invoice's vendor
// independently; vendor profiles change rarely enough that a brief cache
// saves a repeat store round trip between the two stages.
var vendorProfileCache = cache.NewCache(cache.CacheConfig{DefaultTTL: 2 * time.Minute})

// lookupVendorProfile resolves a vendor by tenant and name. Returns (nil,
// nil) when name is empty or no profile exists for it.
func lookupVendorProfile(ctx context.Context, vendors storage.VendorStore, tenantID, name string) (*vendor.Profile, error) {
	if name == "" {
		return nil, nil
	}
	key := tenantID + "/" + name
	if cached, ok := vendorProfileCache.Get(key); ok {
		profile, _ := cached.(vendor.Profile)
		return &profile, nil
	}

	profile, err := vendors.GetByTenantAndKey(ctx, tenantID, name)
	if err != nil {
		if errors.GetKind(err) == errors.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	vendorProfileCache.Set(key, profile, 0)
	return &profile, nil
}
