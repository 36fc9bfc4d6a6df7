package chain

// contractABIJSON is the fixed ABI of the crowdfunding contract. The
// contract itself is external; this is the complete surface the client
// talks to: four mutating methods, three views, two events.
const contractABIJSON = `[
  {
    "type": "function",
    "name": "createProject",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "_title", "type": "string"},
      {"name": "_description", "type": "string"},
      {"name": "_goalAmount", "type": "uint256"},
      {"name": "_durationInDays", "type": "uint256"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "contribute",
    "stateMutability": "payable",
    "inputs": [{"name": "_projectId", "type": "uint256"}],
    "outputs": []
  },
  {
    "type": "function",
    "name": "withdrawFunds",
    "stateMutability": "nonpayable",
    "inputs": [{"name": "_projectId", "type": "uint256"}],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getRefund",
    "stateMutability": "nonpayable",
    "inputs": [{"name": "_projectId", "type": "uint256"}],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getAllProjects",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [
      {
        "name": "",
        "type": "tuple[]",
        "components": [
          {"name": "id", "type": "uint256"},
          {"name": "title", "type": "string"},
          {"name": "description", "type": "string"},
          {"name": "creator", "type": "address"},
          {"name": "goalAmount", "type": "uint256"},
          {"name": "raisedAmount", "type": "uint256"},
          {"name": "deadline", "type": "uint256"},
          {"name": "isActive", "type": "bool"},
          {"name": "goalReached", "type": "bool"}
        ]
      }
    ]
  },
  {
    "type": "function",
    "name": "getUserContribution",
    "stateMutability": "view",
    "inputs": [
      {"name": "_projectId", "type": "uint256"},
      {"name": "_user", "type": "address"}
    ],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "getTimeRemaining",
    "stateMutability": "view",
    "inputs": [{"name": "_projectId", "type": "uint256"}],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "event",
    "name": "ProjectCreated",
    "anonymous": false,
    "inputs": [
      {"name": "projectId", "type": "uint256", "indexed": true},
      {"name": "title", "type": "string", "indexed": false},
      {"name": "creator", "type": "address", "indexed": true},
      {"name": "goalAmount", "type": "uint256", "indexed": false},
      {"name": "deadline", "type": "uint256", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "ContributionMade",
    "anonymous": false,
    "inputs": [
      {"name": "projectId", "type": "uint256", "indexed": true},
      {"name": "contributor", "type": "address", "indexed": true},
      {"name": "amount", "type": "uint256", "indexed": false}
    ]
  }
]`
