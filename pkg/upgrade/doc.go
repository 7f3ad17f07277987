/*
Package upgrade drives zero-downtime rolling upgrades of a clustered secrets
engine running as a statefulset.

# Architecture

The cluster driver enumerates members by leadership role and runs the
per-member procedure strictly sequentially, standbys before the active
member:

	┌────────────────── CLUSTER DRIVER ──────────────────┐
	│  derive target version from the workload template   │
	│  for each standby member:   run member procedure    │
	│  for each active member:    run member procedure    │
	└─────────────────────────────────────────────────────┘

	┌───────────────── MEMBER PROCEDURE ─────────────────┐
	│  outdated or forced?                                 │
	│    active?  step down, await leadership loss         │
	│    delete pod, await deletion, await replacement     │
	│  open channel (bounded retries)                      │
	│  poll seal status until initialized                  │
	│  current and sealed? submit unseal keys in order     │
	│  await unsealed, await ready                         │
	└─────────────────────────────────────────────────────┘

At every instant the cluster keeps a live leader and raft quorum: standbys
are recreated while the active member serves traffic, and the active member
only restarts after a standby has taken over leadership.

The procedure is idempotent modulo the destructive delete: every step is
independently observable through platform state, so a cancelled run can be
re-invoked and resumes correctly.

# Usage

	runner := upgrade.New(clientset, namespace, flavor.Vault, open)
	err := runner.Cluster(ctx, "vault", upgrade.Options{
		Token:  token,
		Unseal: true,
		Keys:   keys,
	})

Bootstrap initializes a fresh cluster instead: member 0 is initialized and
unsealed, the remaining members join the consensus group and are unsealed
with the produced keys.
*/
package upgrade
