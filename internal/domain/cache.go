package domain

// CacheDomain names a partition of cached server data. Keys are shared by
// convention with the query layer that populates the cache.
type CacheDomain string

const (
	DomainWantedListings CacheDomain = "wanted-listings"
	DomainAppointments   CacheDomain = "appointments"
	DomainProfile        CacheDomain = "profile"
	DomainFavorites      CacheDomain = "favorites"
	DomainFavoriteStats  CacheDomain = "favorite-stats"
	DomainMyProperties   CacheDomain = "my-properties"
	DomainNotifications  CacheDomain = "notifications"

	DomainProperties     CacheDomain = "properties"
	DomainAdvertisements CacheDomain = "advertisements"
	DomainNews           CacheDomain = "news"
	DomainKnowledge      CacheDomain = "knowledge"
	DomainLocations      CacheDomain = "locations"
)

var userScopedDomains = []CacheDomain{
	DomainWantedListings,
	DomainAppointments,
	DomainProfile,
	DomainFavorites,
	DomainFavoriteStats,
	DomainMyProperties,
	DomainNotifications,
}

var publicDomains = []CacheDomain{
	DomainProperties,
	DomainAdvertisements,
	DomainNews,
	DomainKnowledge,
	DomainLocations,
}

// UserScopedDomains is the single source for every domain that can hold
// actor-specific data. Eviction and staleness both read it.
func UserScopedDomains() []CacheDomain {
	return append([]CacheDomain(nil), userScopedDomains...)
}

func PublicDomains() []CacheDomain {
	return append([]CacheDomain(nil), publicDomains...)
}

func (d CacheDomain) IsUserScoped() bool {
	for _, v := range userScopedDomains {
		if v == d {
			return true
		}
	}
	return false
}

func (d CacheDomain) IsKnown() bool {
	if d.IsUserScoped() {
		return true
	}
	for _, v := range publicDomains {
		if v == d {
			return true
		}
	}
	return false
}
