package config

// Example is the starter config written by `launch-bridge config init`
const Example = `{
  "version": "launch-bridge/v1",
  "server": {
    "addr": ":8080",
    "baseURL": "http://localhost:8080",
    "sessionSecret": {"$env": "LAUNCH_BRIDGE_SESSION_SECRET"},
    "sessionTtl": "24h",
    "allowedOrigins": ["http://localhost:3000"],
    "secureCookies": false
  },
  "login": {
    "provider": "oidc",
    "discoveryUrl": "https://accounts.example.com/.well-known/openid-configuration",
    "clientId": {"$env": "LAUNCH_BRIDGE_CLIENT_ID"},
    "clientSecret": {"$env": "LAUNCH_BRIDGE_CLIENT_SECRET"},
    "redirectUri": "http://localhost:8080/auth/callback",
    "allowedDomains": ["example.com"]
  },
  "issuer": {
    "kind": "local",
    "issuer": "http://localhost:8080",
    "signingKey": {"$env": "LAUNCH_BRIDGE_SIGNING_KEY"},
    "templates": {
      "crawlmind": {
        "audience": "crawlmind",
        "ttl": "60s",
        "claims": ["username", "email"]
      }
    }
  },
  "bridge": {
    "destinationUrl": "http://localhost:3001/auth/bridge",
    "template": "crawlmind",
    "acquireTimeout": "15s",
    "idleTimeout": "30m",
    "cleanupInterval": "5m"
  },
  "notifications": {
    "ttl": "5s"
  },
  "storage": {
    "kind": "memory"
  }
}
`
