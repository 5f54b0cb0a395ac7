// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth protects the admin API with a shared key.

When ADMIN_KEY is set, requests that change the catalog must send it in the
X-Admin-Key header:

	err := auth.ValidateAdminKey(r.Header.Get(auth.HeaderAdminKey), cfg.AdminKey)

A fresh key can be generated with GenerateAdminKey. Voters are never
authenticated; their identity is the locally generated client id.
*/
package auth
