package memory

import "github.com/samirrijal/parkfinder/internal/core/domain"

// DemoCatalog returns the built-in Moroccan parking catalog used when no
// database is configured.
func DemoCatalog() []domain.ParkingSpot {
	return []domain.ParkingSpot{
		{
			ID: 1, Name: "Centre Ville Parking", Address: "Avenue Mohammed V, Casablanca",
			PricePerHour: 15, Rating: 4.5, Available: 12, Total: 50,
			Location: domain.GeoPoint{Lat: 33.5731, Lon: -7.5898},
			Features: []string{"Covered", "Security", "24/7"},
		},
		{
			ID: 2, Name: "Marina Shopping Parking", Address: "Boulevard de la Corniche, Casablanca",
			PricePerHour: 20, Rating: 4.8, Available: 8, Total: 100,
			Location: domain.GeoPoint{Lat: 33.6061, Lon: -7.6331},
			Features: []string{"Covered", "Valet", "Electric Charging"},
		},
		{
			ID: 3, Name: "Hassan II Mosque Parking", Address: "Boulevard Sidi Mohammed Ben Abdallah, Casablanca",
			PricePerHour: 10, Rating: 4.2, Available: 25, Total: 75,
			Location: domain.GeoPoint{Lat: 33.6084, Lon: -7.6326},
			Features: []string{"Open Air", "Security"},
		},
		{
			ID: 4, Name: "Rabat Agdal Parking", Address: "Avenue Allal Ben Abdellah, Rabat",
			PricePerHour: 12, Rating: 4.3, Available: 18, Total: 60,
			Location: domain.GeoPoint{Lat: 33.9716, Lon: -6.8498},
			Features: []string{"Covered", "Security", "Shopping Center"},
		},
		{
			ID: 5, Name: "Marrakech Medina Parking", Address: "Place Jemaa el-Fnaa, Marrakech",
			PricePerHour: 8, Rating: 4.0, Available: 5, Total: 40,
			Location: domain.GeoPoint{Lat: 31.6295, Lon: -7.9811},
			Features: []string{"Open Air", "Tourist Area"},
		},
		{
			ID: 6, Name: "Fez Medina Parking", Address: "Bab Boujloud, Fez",
			PricePerHour: 6, Rating: 3.8, Available: 0, Total: 30,
			Location: domain.GeoPoint{Lat: 34.0669, Lon: -4.9684},
			Features: []string{"Historic Area", "Walking Distance"},
		},
	}
}
