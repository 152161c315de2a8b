// Package securestore holds small secrets such as the signed-in user's
// identifier and identity token.
package securestore

// Namespaces of the stored credentials.
const (
	UserIDKey = "com.CleanPlateNYC.userID"
	TokenKey  = "com.CleanPlateNYC.token"
)
