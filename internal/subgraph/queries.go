package subgraph

const vaultFields = `
	id
	token { id decimals }
	sharesSupply
	balanceTokens
	latestUpdate { pricePerShare }
`

const vaultQuery = `query Vault($id: ID!) {
  vault(id: $id) {` + vaultFields + `}
}`

const vaultsQuery = `query Vaults($first: Int!, $skip: Int!, $where: Vault_filter) {
  vaults(first: $first, skip: $skip, where: $where, orderBy: id) {` + vaultFields + `}
}`

const accountQuery = `query Account($id: ID!) {
  account(id: $id) {
    id
    vaultPositions {
      balanceShares
      vault {
        id
        token { id decimals }
        latestUpdate { pricePerShare }
      }
    }
    deposits { vault { id } tokenAmount }
    withdrawals { vault { id } tokenAmount }
    sharesSent { vault { id } tokenAmount }
    sharesReceived { vault { id } tokenAmount }
  }
}`
