package authapi

import (
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/identity"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/auth/session"
)

func toUserResponse(u identity.User) userResponse {
	resp := userResponse{ID: u.ID, Email: u.Email}
	if !u.CreatedAt.IsZero() {
		created := u.CreatedAt
		resp.CreatedAt = &created
	}
	return resp
}

func toSessionResponse(issued session.Issued) sessionResponse {
	return sessionResponse{
		SessionID:        issued.SessionID,
		AccessToken:      issued.AccessToken,
		AccessExpiresAt:  issued.AccessExp,
		RefreshToken:     issued.RefreshToken,
		RefreshExpiresAt: issued.RefreshExp,
	}
}

func toDeviceResponses(recs []session.Record) []deviceResponse {
	out := make([]deviceResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, deviceResponse{
			ID:        rec.ID,
			UserAgent: rec.DeviceInfo.UserAgent,
			IP:        rec.DeviceInfo.IP,
			CreatedAt: rec.CreatedAt,
			ExpiresAt: rec.ExpiresAt,
		})
	}
	return out
}
