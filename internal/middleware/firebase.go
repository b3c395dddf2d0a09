package middleware

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/auth"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/flicky/marketplace-api/internal/model"
)

var firebaseNamespace = uuid.MustParse("6f1c2a0e-5d0b-4c39-9a43-2b8f0f4a7e51")

// FirebaseUserID maps a Firebase uid to the stable user id used in this service.
func FirebaseUserID(uid string) uuid.UUID {
	return uuid.NewSHA1(firebaseNamespace, []byte(uid))
}

// FirebaseVerifier accepts Firebase ID tokens. The role comes from the "role"
// custom claim and defaults to buyer.
type FirebaseVerifier struct {
	client *auth.Client
}

func NewFirebaseVerifier(ctx context.Context, projectID, credentialsJSON string) (*FirebaseVerifier, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, option.WithCredentialsJSON([]byte(credentialsJSON)))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, raw string) (Principal, error) {
	token, err := v.client.VerifyIDToken(ctx, raw)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	return Principal{UserID: FirebaseUserID(token.UID), Role: roleFromClaims(token.Claims)}, nil
}

func roleFromClaims(claims map[string]interface{}) string {
	switch role, _ := claims["role"].(string); role {
	case model.RoleSeller, model.RoleAdmin:
		return role
	default:
		return model.RoleBuyer
	}
}
