package api

import (
    "net/http"
    "time"

    "cabdispatch/internal/auth"
    "cabdispatch/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    if _, ok := s.require(w, r, auth.RoleAdmin); !ok { return }
    c := s.Config
    info := map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "port":          c.Server.Port,
            "storage":       c.Storage.Backend(),
            "authMode":      c.Auth.Mode,
            "rateRPS":       c.RateLimit.RPS,
            "rateBurst":     c.RateLimit.Burst,
            "logLevel":      c.Logging.Level,
            "timezone":      c.Allocation.Timezone,
            "seeded":        c.Allocation.Seed != 0,
            "hasRedisURL":   c.Redis.URL != "",
            "hasHMACSecret": c.Auth.HMACSecret != "",
        },
    }
    writeJSON(w, http.StatusOK, info)
}
